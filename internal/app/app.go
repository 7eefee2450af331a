// Package app is the composition root: it builds every client service from
// the configuration and hands out the wired graph.
package app

import (
	"fmt"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/nfrund/chatclient/internal/api"
	"github.com/nfrund/chatclient/internal/chat"
	"github.com/nfrund/chatclient/internal/config"
	"github.com/nfrund/chatclient/internal/logging"
	"github.com/nfrund/chatclient/internal/notify"
	"github.com/nfrund/chatclient/internal/pubsub"
	"github.com/nfrund/chatclient/internal/session"
	"github.com/nfrund/chatclient/internal/websocket"
)

// App exposes the services a front end drives.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Notifier notify.Notifier
	API      *api.Client
	Session  *session.Session
	Store    *chat.Store

	injector *do.RootScope
}

// Option is a function that configures the App.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	notifier notify.Notifier
}

// WithLogger overrides the logger built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithNotifier sets where user-facing errors go. The default logs them.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// New wires the services for cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	injector := do.New()
	do.ProvideValue(injector, cfg)

	do.Provide(injector, func(i do.Injector) (*slog.Logger, error) {
		if o.logger != nil {
			return o.logger, nil
		}
		cfg := do.MustInvoke[*config.Config](i)
		return logging.New(cfg.LogFormat, cfg.LogLevel), nil
	})

	do.Provide(injector, func(i do.Injector) (notify.Notifier, error) {
		if o.notifier != nil {
			return o.notifier, nil
		}
		return notify.NewLog(do.MustInvoke[*slog.Logger](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (*pubsub.WatermillBridge, error) {
		return pubsub.NewWatermillBridge(do.MustInvoke[*slog.Logger](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (*websocket.Dispatcher, error) {
		bus := do.MustInvoke[*pubsub.WatermillBridge](i)
		return websocket.NewDispatcher(bus, do.MustInvoke[*slog.Logger](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (*api.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return api.NewClient(cfg.APIBaseURL,
			api.WithTimeout(cfg.RequestTimeout),
			api.WithAuthToken(cfg.AuthToken),
			api.WithLogger(do.MustInvoke[*slog.Logger](i)),
		)
	})

	do.Provide(injector, func(i do.Injector) (*session.Session, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return session.New(cfg.SocketURL, do.MustInvoke[*websocket.Dispatcher](i),
			session.WithAuthToken(cfg.AuthToken),
			session.WithLogger(do.MustInvoke[*slog.Logger](i)),
		), nil
	})

	do.Provide(injector, func(i do.Injector) (*chat.Store, error) {
		return chat.NewStore(
			do.MustInvoke[*api.Client](i),
			do.MustInvoke[*session.Session](i),
			do.MustInvoke[notify.Notifier](i),
			chat.WithLogger(do.MustInvoke[*slog.Logger](i)),
		), nil
	})

	store, err := do.Invoke[*chat.Store](injector)
	if err != nil {
		injector.Shutdown()
		return nil, fmt.Errorf("wiring services: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   do.MustInvoke[*slog.Logger](injector),
		Notifier: do.MustInvoke[notify.Notifier](injector),
		API:      do.MustInvoke[*api.Client](injector),
		Session:  do.MustInvoke[*session.Session](injector),
		Store:    store,
		injector: injector,
	}, nil
}

// Close stops live updates, disconnects and releases the services.
func (a *App) Close() {
	a.Store.UnsubscribeFromLiveMessages()
	a.injector.Shutdown()
}
