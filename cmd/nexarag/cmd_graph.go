package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KevinMoonLab/nexarag/internal/types"
)

// graphCmd inspects and mutates the live graph
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect or clear the live knowledge graph",
}

var graphShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a summary of the current graph",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()

		g, err := apiClient().GetGraph(ctx)
		if err != nil {
			return err
		}
		byLabel := map[types.NodeLabel]int{}
		for _, n := range g.Nodes {
			byLabel[n.Label]++
		}
		fmt.Printf("%d nodes, %d edges\n", len(g.Nodes), len(g.Edges))
		for _, l := range types.AllLabels() {
			if byLabel[l] > 0 {
				fmt.Printf("  %-18s %d\n", l, byLabel[l])
			}
		}
		return nil
	},
}

var graphClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every node and edge on the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print("This deletes the entire graph on the backend. Continue? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(line)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}

		ctx, cancel := requestContext()
		defer cancel()
		if err := apiClient().ClearGraph(ctx); err != nil {
			return err
		}
		fmt.Println("Graph cleared.")
		return nil
	},
}

func init() {
	graphCmd.AddCommand(graphShowCmd)
	graphCmd.AddCommand(graphClearCmd)
}
