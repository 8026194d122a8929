package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// papersCmd searches for and ingests papers
var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "Search for papers and add them to the graph",
}

var papersSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search papers by relevance",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()

		results, err := apiClient().SearchRelevance(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		for _, r := range results {
			var authors []string
			for _, a := range r.Authors {
				authors = append(authors, a.Name)
			}
			fmt.Printf("%s  (%d)  %s\n    %s\n", r.PaperID, r.Year, r.Title, strings.Join(authors, ", "))
		}
		return nil
	},
}

var papersAddCmd = &cobra.Command{
	Use:   "add [paper-id...]",
	Short: "Add papers to the knowledge graph by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()

		if err := apiClient().AddPapers(ctx, args); err != nil {
			return err
		}
		fmt.Printf("Queued %d paper(s). The graph updates once ingestion finishes.\n", len(args))
		return nil
	},
}

var papersUploadCmd = &cobra.Command{
	Use:   "upload [paper-id] [file...]",
	Short: "Attach PDF or text documents to a paper",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()

		paperID := args[0]
		client := apiClient()

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, path := range args[1:] {
			g.Go(func() error {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := client.UploadDoc(ctx, paperID, filepath.Base(path), f); err != nil {
					return fmt.Errorf("upload %s: %w", path, err)
				}
				fmt.Println("Uploaded", path)
				return nil
			})
		}
		return g.Wait()
	},
}

func init() {
	papersCmd.AddCommand(papersSearchCmd)
	papersCmd.AddCommand(papersAddCmd)
	papersCmd.AddCommand(papersUploadCmd)
}
