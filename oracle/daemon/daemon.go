package daemon

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	metrics "github.com/armon/go-metrics"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/GPTx-global/flightsurety/oracle/chain"
	"github.com/GPTx-global/flightsurety/oracle/config"
	"github.com/GPTx-global/flightsurety/oracle/health"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/matcher"
	"github.com/GPTx-global/flightsurety/oracle/registry"
	"github.com/GPTx-global/flightsurety/oracle/retry"
	"github.com/GPTx-global/flightsurety/oracle/server"
	"github.com/GPTx-global/flightsurety/oracle/status"
	"github.com/GPTx-global/flightsurety/oracle/submitter"
	"github.com/GPTx-global/flightsurety/oracle/subscribe"
	"github.com/GPTx-global/flightsurety/oracle/telemetry"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

const healthInterval = 30 * time.Second

type Daemon struct {
	cfg      *config.Config
	gateway  chain.Gateway
	accounts []common.Address
	stake    *big.Int

	registry         *registry.Registry
	submitter        *submitter.Submitter
	subscribeManager *subscribe.Manager
	checker          *health.HealthChecker
	sink             *metrics.InmemSink
	api              *server.Server

	registered chan struct{}
	inflight   sync.WaitGroup
}

// New derives the oracle accounts from the configured mnemonic and dials the chain.
func New(ctx context.Context, cfg *config.Config) (*Daemon, error) {
	keyring, err := chain.NewKeyring(cfg.Accounts.Mnemonic, cfg.Accounts.FirstIndex, cfg.Accounts.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to create keyring: %w", err)
	}

	gateway, err := chain.Dial(ctx, chain.EthereumConfig{
		Endpoint:   cfg.Chain.Endpoint,
		AppAddress: cfg.AppAddress(),
		ChainID:    cfg.Chain.ChainID,
		GasLimit:   cfg.Oracle.GasLimit,
	}, keyring)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Chain.Endpoint, err)
	}
	log.Infof("connected to chain %s, app contract %s", gateway.ChainID(), cfg.AppAddress().Hex())

	d, err := NewWithGateway(cfg, gateway, keyring.Addresses(), status.NewRandomGenerator(cfg.StatusCodes()))
	if err != nil {
		gateway.Close()
		return nil, err
	}

	return d, nil
}

// NewWithGateway wires the daemon around an existing gateway. accounts must be known to the gateway's signer.
func NewWithGateway(cfg *config.Config, gateway chain.Gateway, accounts []common.Address, source status.Source) (*Daemon, error) {
	stake, err := cfg.Stake()
	if err != nil {
		return nil, err
	}

	sink, err := telemetry.Init(telemetry.DefaultInterval, telemetry.DefaultRetain)
	if err != nil {
		return nil, fmt.Errorf("failed to init telemetry: %w", err)
	}

	d := &Daemon{
		cfg:       cfg,
		gateway:   gateway,
		accounts:  accounts,
		stake:     stake,
		registry:  registry.New(cfg.IndexBuckets()),
		submitter: submitter.New(gateway, source),
		checker:   health.NewHealthChecker(healthInterval),
		sink:      sink,

		registered: make(chan struct{}),
	}
	d.subscribeManager = subscribe.NewSubscribeManager(gateway, d.handleRequest, d.ObserveStatus)
	d.checker.AddCheck(health.ChainCheck(gateway.BlockNumber))
	d.checker.AddCheck(health.RegistryCheck(d.registry.Len))
	if cfg.API.Enabled {
		d.api = server.New(cfg.API.Listen, d.registry, d.checker, sink)
	}

	return d, nil
}

// WithSubscribeRetry overrides the listener backoff.
func (d *Daemon) WithSubscribeRetry(cfg *retry.RetryConfig) *Daemon {
	d.subscribeManager.WithRetry(cfg)
	return d
}

// Run registers the oracles and serves requests until ctx is cancelled. Listening starts
// immediately; requests that arrive before an oracle finishes registering do not reach it.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.gateway.Close()

	d.checkRegistrationFee(ctx)

	log.Infof("registering %d oracles with %s wei each", len(d.accounts), d.stake)
	done := d.registry.RegisterAll(ctx, d.gateway, d.accounts, d.stake)
	go func() {
		<-done
		close(d.registered)
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.subscribeManager.Run(gctx)
	})
	g.Go(func() error {
		d.checker.Start(gctx)
		return nil
	})
	if d.api != nil {
		// the API is optional; its failure must not stop the listeners
		g.Go(func() error {
			if err := d.api.Run(gctx); err != nil {
				log.Errorf("api server stopped: %v", err)
			}
			return nil
		})
	}

	err := g.Wait()

	// listeners are stopped, so no new handler can start
	d.inflight.Wait()
	<-d.registered
	log.Infof("oracle daemon stopped")

	return err
}

// Registered is closed once every startup registration has resolved.
func (d *Daemon) Registered() <-chan struct{} {
	return d.registered
}

func (d *Daemon) Registry() *registry.Registry {
	return d.registry
}

func (d *Daemon) Checker() *health.HealthChecker {
	return d.checker
}

func (d *Daemon) Metrics() *metrics.InmemSink {
	return d.sink
}

// ProcessRequest answers req with every registered oracle that is eligible for it and waits for the submissions.
func (d *Daemon) ProcessRequest(ctx context.Context, req types.StatusRequest) []submitter.Result {
	telemetry.IncrCounter(telemetry.KeyRequestReceived)

	matched := matcher.Match(req, d.registry.AllOracles())
	if len(matched) == 0 {
		log.Debugf("no registered oracle for request %s", req)
		return nil
	}
	telemetry.IncrCounterBy(telemetry.KeyRequestMatched, len(matched))
	log.Infof("request %s matched %d oracles", req, len(matched))

	results := d.submitter.Submit(ctx, req, matched)
	if failed := submitter.Failed(results); failed > 0 {
		log.Warnf("request %s: %d of %d submissions failed", req, failed, len(results))
	}

	return results
}

// handleRequest runs ProcessRequest off the listener goroutine.
func (d *Daemon) handleRequest(ctx context.Context, req types.StatusRequest) {
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.ProcessRequest(ctx, req)
	}()
}

// ObserveStatus records a FlightStatusInfo event. The daemon takes no action on it.
func (d *Daemon) ObserveStatus(_ context.Context, info types.FlightStatusInfo) {
	log.Infof("flight status decided: %s", info)
	telemetry.IncrCounterWithLabels(telemetry.KeyStatusConsensus, metrics.Label{Name: "status", Value: info.Status.String()})
}

func (d *Daemon) checkRegistrationFee(ctx context.Context) {
	fee, err := d.gateway.RegistrationFee(ctx)
	if err != nil {
		log.Warnf("failed to read registration fee: %v", err)
		return
	}
	if d.stake.Cmp(fee) < 0 {
		log.Warnf("configured stake %s wei is below the registration fee %s wei; registrations will be rejected", d.stake, fee)
	}
}
