package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KevinMoonLab/nexarag/internal/history"
)

// historyCmd browses archived conversations
var historyCmd = &cobra.Command{
	Use:   "history [chat-id]",
	Short: "Browse archived chat conversations",
	Long: `Without arguments, lists archived conversations. With a chat id,
prints that conversation's transcript.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.History.Enabled {
			return fmt.Errorf("history is disabled in the config")
		}
		archive, err := history.Open(cfg.History.DatabasePath)
		if err != nil {
			return err
		}
		defer archive.Close()

		if len(args) == 0 {
			convs, err := archive.Conversations()
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Println("No archived conversations.")
				return nil
			}
			for _, c := range convs {
				fmt.Printf("%-38s %4d messages  %s\n", c.ChatID, c.Messages, c.UpdatedAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		}

		msgs, err := archive.Messages(args[0])
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return fmt.Errorf("no conversation with id %q", args[0])
		}
		for _, m := range msgs {
			speaker := "assistant"
			if m.IsUser {
				speaker = "you"
			}
			fmt.Printf("[%s] %s\n", speaker, m.Text)
		}
		return nil
	},
}
