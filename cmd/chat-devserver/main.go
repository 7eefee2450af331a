package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfrund/chatclient/internal/config"
	"github.com/nfrund/chatclient/internal/devserver"
	"github.com/nfrund/chatclient/internal/logging"
)

var (
	envFile   string
	rateLimit int
)

var rootCmd = &cobra.Command{
	Use:   "chat-devserver",
	Short: "Run an in-memory chat backend for local development",
	Long: `chat-devserver serves the chat REST API and live connection from memory.
Users are seeded from DEVSERVER_USERS; a session token for each of them is
printed at startup so the chat CLI can sign in as any of them.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadDevServer(envFile)
		if err != nil {
			return err
		}
		logger := logging.New(cfg.LogFormat, cfg.LogLevel)

		srv := devserver.New(cfg.JWTSecret, cfg.UserNames(),
			devserver.WithLogger(logger),
			devserver.WithRateLimit(rateLimit),
		)

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Seeded users:")
		for _, u := range srv.Store().Users() {
			token, err := srv.Token(u.ID)
			if err != nil {
				return fmt.Errorf("issuing token for %s: %w", u.FullName, err)
			}
			fmt.Fprintf(out, "  %-10s CHAT_USER_ID=%s CHAT_AUTH_TOKEN=%s\n", u.FullName, u.ID, token)
		}

		if err := srv.Run(cmd.Context(), cfg.Addr); err != nil {
			return err
		}
		slog.Info("Dev server stopped")
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	rootCmd.Flags().IntVar(&rateLimit, "rate-limit", 120, "max send requests per client IP and minute (0 disables)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
