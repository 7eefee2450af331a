package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var historyOut string

var historyCmd = &cobra.Command{
	Use:   "history <userId>",
	Short: "Print the conversation with a user",
	Long: `Print the conversation with a user in creation order.

Examples:
  chat history 64f0c2...                       # print to the terminal
  chat history 64f0c2... --out logs/bob.json   # also write a JSON transcript`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		a.Store.LoadUsers(ctx)
		partner := resolveUser(a.Store.State().Users, args[0])

		a.Store.SelectUser(&partner)
		a.Store.LoadMessages(ctx, partner.ID)

		messages := a.Store.State().Messages
		out := cmd.OutOrStdout()
		if len(messages) == 0 {
			fmt.Fprintln(out, "No messages yet.")
		}
		printMessages(out, messages, a.Config.UserID, &partner)

		if historyOut != "" {
			if err := writeTranscript(appFs, historyOut, partner, messages, time.Now()); err != nil {
				return fmt.Errorf("writing transcript: %w", err)
			}
			fmt.Fprintf(out, "Transcript written to %s\n", historyOut)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyOut, "out", "o", "", "write the conversation as JSON to this file")
	rootCmd.AddCommand(historyCmd)
}
