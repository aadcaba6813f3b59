// Package client composes the engine: configuration, transport, caches and
// trackers, wired through fx with a single lifecycle.
package client

import (
	"context"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/bus"
	"github.com/anhdn/convo/internal/config"
	"github.com/anhdn/convo/internal/delivery"
	"github.com/anhdn/convo/internal/lock"
	"github.com/anhdn/convo/internal/logging"
	"github.com/anhdn/convo/internal/model"
	"github.com/anhdn/convo/internal/presence"
	"github.com/anhdn/convo/internal/profile"
	"github.com/anhdn/convo/internal/realtime"
	"github.com/anhdn/convo/internal/rest"
	"github.com/anhdn/convo/internal/summary"
	"github.com/anhdn/convo/internal/thread"
	"github.com/anhdn/convo/internal/wire"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
}

// Module returns the fx module for the engine, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("client",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideConn,
			provideReconnector,
			provideRest,
			provideSummary,
			providePresenceTracker,
			provideNotifier,
			provideDelivery,
			provideThreadManager,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = &config.Config{}
	}
	if override, err := config.Load(profile.ProfileConfigPath(p.ProfileName)); err == nil {
		cfg = config.Merge(cfg, override)
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideConn(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *realtime.Conn {
	return realtime.New(realtime.Options{
		URL:   cfg.ServerURL,
		Token: cfg.Token,
	}, b, logger)
}

func provideReconnector(conn *realtime.Conn, cfg *config.Config, b *bus.Bus, logger *zap.Logger) *realtime.Reconnector {
	return realtime.NewReconnector(conn, b, logger, cfg.ReconnectAttempts, cfg.ReconnectDelay())
}

func provideRest(cfg *config.Config, logger *zap.Logger) *rest.Client {
	return rest.NewClient(cfg.ServerURL, cfg.Token, logger)
}

func provideSummary(b *bus.Bus, logger *zap.Logger) *summary.Synchronizer {
	return summary.New(b, logger)
}

func providePresenceTracker(b *bus.Bus, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(b, logger)
}

func provideNotifier(conn *realtime.Conn, cfg *config.Config, logger *zap.Logger) *presence.Notifier {
	return presence.NewNotifier(conn, logger, cfg.TypingWindow())
}

func provideDelivery(conn *realtime.Conn, sync *summary.Synchronizer, b *bus.Bus, logger *zap.Logger) *delivery.Tracker {
	return delivery.NewTracker(conn, sync, b, logger)
}

func provideThreadManager(cfg *config.Config, conn *realtime.Conn, api *rest.Client, tracker *delivery.Tracker, b *bus.Bus, logger *zap.Logger) *thread.Manager {
	return thread.NewManager(cfg.UserID, cfg.UserName, conn, api, tracker, b, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	lk *lock.Lock,
	conn *realtime.Conn,
	api *rest.Client,
	reconnector *realtime.Reconnector,
	sync *summary.Synchronizer,
	tracker *presence.Tracker,
	deliveries *delivery.Tracker,
	manager *thread.Manager,
	notifier *presence.Notifier,
	b *bus.Bus,
	logger *zap.Logger,
) {
	loopCtx, stopLoops := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			sync.Start(loopCtx)
			tracker.Start(loopCtx)
			deliveries.Start(loopCtx)
			manager.Start(loopCtx)
			reconnector.Start(loopCtx)

			go requestSnapshots(loopCtx, conn, api, sync, b, logger)

			// Connect in the background; a failed first attempt is the
			// reconnector's problem from here on.
			go func() {
				if err := conn.Connect(loopCtx); err != nil {
					logger.Warn("initial connect failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			notifier.Shutdown()
			stopLoops()
			conn.Disconnect()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}

// requestSnapshots asks for a bulk summary refresh every time the
// connection comes up, covering pushes missed while offline. An empty cache
// is seeded from the conversation listing first, so the very first request
// already carries the user's conversations.
func requestSnapshots(ctx context.Context, conn *realtime.Conn, api *rest.Client, sync *summary.Synchronizer, b *bus.Bus, logger *zap.Logger) {
	ch, unsub := b.Subscribe("conn.", 16)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			change, ok := evt.Payload.(realtime.StateChange)
			if !ok || change.To != realtime.StateConnected {
				continue
			}
			if len(sync.Snapshot()) == 0 {
				seedFromListing(ctx, api, sync, logger)
			}
			ids := make([]string, 0)
			for _, row := range sync.Snapshot() {
				ids = append(ids, row.ID)
			}
			conn.Emit(wire.EventRequestLastMessages, wire.RequestLastMessages{ConversationIDs: ids})
		case <-ctx.Done():
			return
		}
	}
}

func seedFromListing(ctx context.Context, api *rest.Client, sync *summary.Synchronizer, logger *zap.Logger) {
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	convs, err := api.ListConversations(callCtx, rest.ConversationFilter{})
	if err != nil {
		logger.Warn("conversation listing failed, snapshot request stays empty", zap.Error(err))
		return
	}

	rows := make([]model.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		rows = append(rows, model.ConversationSummary{
			ID:   c.ID,
			Type: model.ConversationType(c.Type),
		})
	}
	sync.Seed(rows)
}
