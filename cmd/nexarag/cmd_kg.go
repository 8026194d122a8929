package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KevinMoonLab/nexarag/internal/kg"
)

var kgDescription string

// kgCmd manages knowledge graph snapshots on the backend
var kgCmd = &cobra.Command{
	Use:   "kg",
	Short: "Manage knowledge graph snapshots",
}

var kgListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exported snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := kg.NewStore(apiClient(), logger)
		ctx, cancel := requestContext()
		defer cancel()

		infos, err := store.List(ctx)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("No snapshots exported yet.")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%-30s %8.1f MB  %s", info.Name, info.SizeMB, info.CreatedAt)
			if info.Description != "" {
				fmt.Printf("  - %s", info.Description)
			}
			fmt.Println()
		}
		return nil
	},
}

var kgExportCmd = &cobra.Command{
	Use:   "export [name]",
	Short: "Export the live graph as a named snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := kg.NewStore(apiClient(), logger)
		ctx, cancel := requestContext()
		defer cancel()

		msg, err := store.Export(ctx, args[0], kgDescription)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var kgImportCmd = &cobra.Command{
	Use:   "import [name]",
	Short: "Replace the live graph with a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := kg.NewStore(apiClient(), logger)
		ctx, cancel := requestContext()
		defer cancel()

		msg, err := store.Import(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var kgDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := kg.NewStore(apiClient(), logger)
		ctx, cancel := requestContext()
		defer cancel()

		msg, err := store.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	},
}

var kgCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the graph currently backing the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := kg.NewStore(apiClient(), logger)
		ctx, cancel := requestContext()
		defer cancel()

		info, err := store.Current(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Database: %s\nURI:      %s\nStatus:   %s\n", info.Database, info.URI, info.Status)
		if info.Message != "" {
			fmt.Println(info.Message)
		}
		return nil
	},
}

func init() {
	kgExportCmd.Flags().StringVar(&kgDescription, "description", "", "Snapshot description")

	kgCmd.AddCommand(kgListCmd)
	kgCmd.AddCommand(kgExportCmd)
	kgCmd.AddCommand(kgImportCmd)
	kgCmd.AddCommand(kgDeleteCmd)
	kgCmd.AddCommand(kgCurrentCmd)
}

// requestContext bounds a one-shot CLI request with the configured timeout.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cfg.GetRequestTimeout())
}
