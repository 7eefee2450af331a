package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/nfrund/chatclient/internal/app"
	"github.com/nfrund/chatclient/internal/config"
	"github.com/nfrund/chatclient/internal/logging"
	"github.com/nfrund/chatclient/internal/notify"
)

var (
	envFile   string
	apiURL    string
	socketURL string
	authToken string
	userID    string
	logLevel  string
	logFormat string

	// appFs is where transcripts are written.
	appFs afero.Fs = afero.NewOsFs()

	// notifier collects the errors shown during the run; any of them makes
	// the process exit non-zero.
	notifier *notify.Terminal
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Terminal client for the chat service",
	Long: `chat talks to the chat backend: it lists conversation partners, prints
and exports conversation history, sends messages and follows a conversation live.

Configuration comes from CHAT_* environment variables or a .env file;
flags override both.

Use "chat [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with its status.
func Execute() {
	code, err := run()
	if err != nil {
		fmt.Fprintln(os.Stderr, color.Red.Sprint("Error: ")+err.Error())
		os.Exit(1)
	}
	os.Exit(code)
}

func run() (int, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return 1, err
	}
	if notifier != nil && notifier.Count() > 0 {
		return 1, nil
	}
	return 0, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	flags.StringVar(&apiURL, "api-url", "", "REST base URL (CHAT_API_URL)")
	flags.StringVar(&socketURL, "socket-url", "", "live connection URL (CHAT_SOCKET_URL)")
	flags.StringVar(&authToken, "token", "", "session token sent as the jwt cookie (CHAT_AUTH_TOKEN)")
	flags.StringVar(&userID, "user", "", "id of the signed-in user (CHAT_USER_ID)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	flags.StringVar(&logFormat, "log-format", "", "text or json (LOG_FORMAT)")
}

// loadConfig reads the environment and applies the flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, value string) {
		if flags.Changed(name) {
			*dst = value
		}
	}
	override("api-url", &cfg.APIBaseURL, apiURL)
	override("socket-url", &cfg.SocketURL, socketURL)
	override("token", &cfg.AuthToken, authToken)
	override("user", &cfg.UserID, userID)
	override("log-level", &cfg.LogLevel, logLevel)
	override("log-format", &cfg.LogFormat, logFormat)

	return cfg, cfg.Validate()
}

// newApp builds the client for a command. Notifications go to the
// command's stderr.
func newApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	notifier = notify.NewTerminal(cmd.ErrOrStderr())
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
	return app.New(cfg, app.WithNotifier(notifier), app.WithLogger(logger))
}
