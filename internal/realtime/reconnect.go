package realtime

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/anhdn/convo/internal/bus"
)

// Connector is the slice of Conn the reconnector needs.
type Connector interface {
	Connect(ctx context.Context) error
}

// Reconnector drives bounded reconnection attempts off the conn.state event
// stream. The connection itself has no retry policy; this is the caller-side
// loop the contract asks for. Beyond the attempt bound it goes quiet and the
// interactive surface owns the persistent-offline affordance.
type Reconnector struct {
	conn        Connector
	bus         *bus.Bus
	logger      *zap.Logger
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	cancel      context.CancelFunc
}

// NewReconnector creates a reconnector. maxAttempts <= 0 defaults to 5,
// baseDelay <= 0 to 3s, matching the original client policy.
func NewReconnector(conn Connector, b *bus.Bus, logger *zap.Logger, maxAttempts int, baseDelay time.Duration) *Reconnector {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = 3 * time.Second
	}
	return &Reconnector{
		conn:        conn,
		bus:         b,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    30 * time.Second,
	}
}

// Start subscribes to connection state changes.
func (r *Reconnector) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("conn.", 16)

	go func() {
		defer unsub()
		attempts := 0
		for {
			select {
			case evt := <-ch:
				change, ok := evt.Payload.(StateChange)
				if !ok {
					continue
				}
				switch change.To {
				case StateConnected:
					attempts = 0
				case StateDisconnected:
					if attempts >= r.maxAttempts {
						r.logger.Error("reconnect attempts exhausted, manual retry required",
							zap.Int("attempts", attempts))
						continue
					}
					delay := r.delayFor(attempts)
					attempts++
					r.logger.Info("reconnecting",
						zap.Int("attempt", attempts),
						zap.Int("max_attempts", r.maxAttempts),
						zap.Duration("delay", delay))
					select {
					case <-time.After(delay):
					case <-ctx.Done():
						return
					}
					if err := r.conn.Connect(ctx); err != nil {
						// A failed attempt publishes its own disconnected
						// transition, which drives the next round.
						r.logger.Warn("reconnect attempt failed", zap.Error(err))
					}
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the reconnector.
func (r *Reconnector) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Reconnector) delayFor(attempt int) time.Duration {
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	return delay
}
