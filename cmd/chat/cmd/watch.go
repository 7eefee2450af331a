package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nfrund/chatclient/internal/chat"
	"github.com/nfrund/chatclient/internal/domain"
)

var watchCmd = &cobra.Command{
	Use:   "watch <userId>",
	Short: "Follow a conversation live",
	Long: `Print the conversation with a user, then keep printing messages as they
arrive until interrupted. Requires CHAT_USER_ID (or --user) for the live
connection.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Config.UserID == "" {
			return errors.New("watch needs the signed-in user id (CHAT_USER_ID or --user)")
		}

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		a.Store.LoadUsers(ctx)
		partner := resolveUser(a.Store.State().Users, args[0])
		a.Store.SelectUser(&partner)
		a.Store.LoadMessages(ctx, partner.ID)

		printed := a.Store.State().Messages
		printMessages(out, printed, a.Config.UserID, &partner)

		if err := a.Session.Connect(ctx, a.Config.UserID); err != nil {
			return fmt.Errorf("connecting: %w", err)
		}
		defer a.Session.Disconnect()

		changed := make(chan struct{}, 1)
		cancel := a.Store.Observe(func(chat.State) {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
		defer cancel()

		a.Store.SubscribeToLiveMessages()
		defer a.Store.UnsubscribeFromLiveMessages()

		name := partner.FullName
		if name == "" {
			name = partner.ID
		}
		fmt.Fprintf(out, "Watching conversation with %s. Press Ctrl+C to stop.\n", name)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			count := len(printed)
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changed:
					messages := a.Store.State().Messages
					if len(messages) > count {
						printMessages(out, messages[count:], a.Config.UserID, &partner)
					}
					count = len(messages)
				}
			}
		})
		g.Go(func() error {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if !a.Session.Connected() {
						return fmt.Errorf("watch: %w", domain.ErrNotConnected)
					}
				}
			}
		})

		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
