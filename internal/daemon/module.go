// Package daemon composes a session's sync engine, push channel and control
// server with fx.
package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/oauth2"

	"github.com/matheus3301/textsync/internal/api"
	"github.com/matheus3301/textsync/internal/auth"
	"github.com/matheus3301/textsync/internal/bus"
	"github.com/matheus3301/textsync/internal/config"
	"github.com/matheus3301/textsync/internal/lock"
	"github.com/matheus3301/textsync/internal/logging"
	"github.com/matheus3301/textsync/internal/realtime"
	"github.com/matheus3301/textsync/internal/session"
	intsync "github.com/matheus3301/textsync/internal/sync"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ConfigPath  string // empty = use default
	SocketPath  string // optional override for testing; empty = use default
	Debug       bool
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideTokens,
			provideAPIClient,
			provideSession,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if cfg.Account.Token == "" && cfg.Account.TokenFile == "" {
		cfg.Account.TokenFile = session.TokenPath(p.SessionName)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if p.Debug {
		level = zapcore.DebugLevel
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName), p.SessionName)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideTokens(cfg *config.Config) (oauth2.TokenSource, error) {
	return auth.NewSource(cfg.Account.Token, cfg.Account.TokenFile)
}

func provideAPIClient(cfg *config.Config, tokens oauth2.TokenSource, logger *zap.Logger) *api.Client {
	base := &http.Client{Timeout: 30 * time.Second}
	return api.NewClient(cfg.Server.APIBaseURL, tokens, base, logger.Named("api"))
}

func provideSession(cfg *config.Config, client *api.Client, b *bus.Bus, logger *zap.Logger) *intsync.Session {
	return intsync.New(client, sessionOptions(cfg), b, logger.Named("sync"))
}

func sessionOptions(cfg *config.Config) intsync.Options {
	return intsync.Options{
		Local:        cfg.Account.PhoneNumber,
		PageSize:     cfg.Sync.PageSize,
		MaxPages:     cfg.Sync.MaxPages,
		MaxItems:     cfg.Sync.MaxItems,
		PollInterval: cfg.Sync.CursorPollInterval,
	}
}

func channelOptions(cfg *config.Config) realtime.Options {
	return realtime.Options{
		Backoff:       realtime.Backoff{Base: cfg.Realtime.BaseDelay, Max: cfg.Realtime.MaxDelay},
		DegradedAfter: cfg.Realtime.DegradedAfter,
	}
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, lk *lock.Lock, sess *intsync.Session, tokens oauth2.TokenSource, b *bus.Bus, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	events, unsub := b.Subscribe("", 256)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go logEvents(runCtx, events, logger)

			sess.Start(runCtx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			if cfg.Server.PushURL != "" {
				sess.Connect(cfg.Server.PushURL, realtime.WebsocketDialer{}, tokens, channelOptions(cfg))
			} else {
				logger.Info("no push url configured, relying on polling")
			}

			go func() {
				if err := sess.Bootstrap(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("bootstrap failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			srv.Stop(ctx)
			err := sess.Close()
			unsub()
			if rerr := lk.Release(); rerr != nil {
				logger.Warn("error releasing lock", zap.Error(rerr))
			}
			logger.Info("daemon stopped")
			return err
		},
	})
}

func logEvents(ctx context.Context, events <-chan bus.Event, logger *zap.Logger) {
	for {
		select {
		case evt := <-events:
			switch evt.Kind {
			case bus.ChannelDegraded, bus.BackfillFailed, bus.MessageSendFailed:
				logger.Warn("event", zap.String("kind", evt.Kind), zap.Any("payload", evt.Payload))
			default:
				logger.Debug("event", zap.String("kind", evt.Kind), zap.Any("payload", evt.Payload))
			}
		case <-ctx.Done():
			return
		}
	}
}
