package subscribe

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/event"
	"golang.org/x/sync/errgroup"

	"github.com/GPTx-global/flightsurety/oracle/chain"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/retry"
	"github.com/GPTx-global/flightsurety/oracle/telemetry"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

type (
	RequestHandler func(ctx context.Context, req types.StatusRequest)
	InfoHandler    func(ctx context.Context, info types.FlightStatusInfo)
)

// Manager runs one listener per ledger event. The listeners are independent; neither orders nor waits for the other.
type Manager struct {
	source      chain.EventSource
	onRequest   RequestHandler
	onInfo      InfoHandler
	channelSize int
	retry       *retry.RetryConfig
}

// NewSubscribeManager creates a manager that delivers events from source to the handlers.
func NewSubscribeManager(source chain.EventSource, onRequest RequestHandler, onInfo InfoHandler) *Manager {
	return &Manager{
		source:      source,
		onRequest:   onRequest,
		onInfo:      onInfo,
		channelSize: 2 << 10,
		retry:       retry.SubscriptionRetryConfig(),
	}
}

// WithRetry overrides the backoff used when (re)subscribing.
func (m *Manager) WithRetry(cfg *retry.RetryConfig) *Manager {
	m.retry = cfg
	return m
}

// Run blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listen[types.StatusRequest](gctx, "OracleRequest", m.source.SubscribeOracleRequests, m.onRequest, m.channelSize, m.retry)
	})
	g.Go(func() error {
		return listen[types.FlightStatusInfo](gctx, "FlightStatusInfo", m.source.SubscribeFlightStatusInfo, m.onInfo, m.channelSize, m.retry)
	})

	return g.Wait()
}

type subscribeFunc[T any] func(ctx context.Context, sink chan<- T) (event.Subscription, error)

func listen[T any](ctx context.Context, name string, subscribe subscribeFunc[T], handle func(context.Context, T), size int, cfg *retry.RetryConfig) error {
	ch := make(chan T, size)

	for {
		var sub event.Subscription
		err := retry.Do(ctx, cfg, func() error {
			s, err := subscribe(ctx, ch)
			if err != nil {
				telemetry.IncrCounter(telemetry.KeySubscriptionError)
				return errorsmod.Wrapf(types.ErrSubscription, "%s: %v", name, err)
			}
			sub = s
			return nil
		}, retry.Always)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		log.Infof("listening for %s events", name)
		if !consume(ctx, name, sub, ch, handle) {
			return nil
		}
		if !pause(ctx, cfg.BaseDelay) {
			return nil
		}
	}
}

// pause waits d before the next subscribe attempt. It returns false if ctx ends first.
func pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// consume delivers events until the subscription fails (true) or ctx ends (false).
func consume[T any](ctx context.Context, name string, sub event.Subscription, ch <-chan T, handle func(context.Context, T)) bool {
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-ch:
			if log.DebugEnabled() {
				log.Debugf("%s event:\n%s", name, spew.Sdump(ev))
			}
			handle(ctx, ev)
		case err, ok := <-sub.Err():
			if !ok || err == nil {
				log.Warnf("%s subscription closed, resubscribing", name)
				return true
			}
			log.Errorf("%s subscription error, resubscribing: %v", name, err)
			telemetry.IncrCounter(telemetry.KeySubscriptionError)
			return true
		case <-ctx.Done():
			log.Infof("%s listener stopped", name)
			return false
		}
	}
}
