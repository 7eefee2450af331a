package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nfrund/chatclient/internal/domain"
)

var sendImage string

var sendCmd = &cobra.Command{
	Use:   "send <userId> [text...]",
	Short: "Send a message to a user",
	Args:  cobra.MinimumNArgs(1),
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

		before := len(a.Store.State().Messages)
		a.Store.SendMessage(ctx, domain.SendPayload{
			Text:  strings.Join(args[1:], " "),
			Image: sendImage,
		})

		messages := a.Store.State().Messages
		if len(messages) > before {
			fmt.Fprintln(cmd.OutOrStdout(), formatMessage(messages[len(messages)-1], a.Config.UserID, &partner))
		}
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendImage, "image", "", "image URL or data URI to attach")
	rootCmd.AddCommand(sendCmd)
}
