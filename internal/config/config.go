package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Config holds the client configuration. Values come from the process
// environment, optionally seeded from a .env file.
type Config struct {
	APIBaseURL     string        `env:"CHAT_API_URL,default=http://localhost:5001/api" validate:"required,url"`
	SocketURL      string        `env:"CHAT_SOCKET_URL,default=ws://localhost:5001/ws" validate:"required,url"`
	AuthToken      string        `env:"CHAT_AUTH_TOKEN"`
	UserID         string        `env:"CHAT_USER_ID"`
	RequestTimeout time.Duration `env:"CHAT_REQUEST_TIMEOUT,default=10s" validate:"gt=0"`
	LogFormat      string        `env:"LOG_FORMAT,default=text" validate:"oneof=text json"`
	LogLevel       string        `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
}

// DevServer holds the configuration of the reference backend.
type DevServer struct {
	Addr      string `env:"DEVSERVER_ADDR,default=:5001" validate:"required"`
	JWTSecret string `env:"DEVSERVER_JWT_SECRET,default=dev-secret" validate:"required"`
	Users     string `env:"DEVSERVER_USERS,default=alice|bob|carol" validate:"required"`
	LogFormat string `env:"LOG_FORMAT,default=text" validate:"oneof=text json"`
	LogLevel  string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// UserNames returns the seeded user names, trimmed and without blanks.
// Names are separated by "|" or ",".
func (d *DevServer) UserNames() []string {
	fields := strings.FieldsFunc(d.Users, func(r rune) bool { return r == '|' || r == ',' })
	names := lo.Map(fields, func(s string, _ int) string {
		return strings.TrimSpace(s)
	})
	return lo.Uniq(lo.Compact(names))
}

// Load reads the client configuration. A missing .env file is not an error.
func Load(files ...string) (*Config, error) {
	cfg := &Config{}
	if err := load(cfg, files...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDevServer reads the reference backend configuration.
func LoadDevServer(files ...string) (*DevServer, error) {
	cfg := &DevServer{}
	if err := load(cfg, files...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its rules. It is exported so
// callers can re-validate after applying flag overrides.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func load(target any, files ...string) error {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		slog.Debug("No .env file found, relying on environment variables")
	}

	if _, err := env.UnmarshalFromEnviron(target); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
