package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var usersOnline bool

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the users you can chat with",
	Long: `List every user the backend offers as a conversation partner.

With --online the client briefly opens the live connection (requires
CHAT_USER_ID) and marks the users that are currently connected.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		a.Store.LoadUsers(ctx)

		var isOnline func(string) bool
		if usersOnline && a.Config.UserID != "" {
			if err := a.Session.Connect(ctx, a.Config.UserID); err != nil {
				a.Notifier.Error("Failed to connect")
				a.Logger.Error("Failed to connect", "error", err)
			} else {
				waitFor(ctx, 2*time.Second, func() bool { return len(a.Session.OnlineUsers()) > 0 })
				isOnline = a.Session.IsOnline
			}
		}

		printUsers(cmd.OutOrStdout(), a.Store.State().Users, isOnline)
		return nil
	},
}

// waitFor polls cond until it holds, ctx ends or timeout passes.
func waitFor(ctx context.Context, timeout time.Duration, cond func() bool) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if cond() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func init() {
	usersCmd.Flags().BoolVar(&usersOnline, "online", false, "mark users that are online")
	rootCmd.AddCommand(usersCmd)
}
