package registry

import (
	"context"
	"math/big"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	cmap "github.com/orcaman/concurrent-map/v2"
	lop "github.com/samber/lo/parallel"

	"github.com/GPTx-global/flightsurety/oracle/chain"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/telemetry"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// Registry holds the oracles the ledger accepted during this run, keyed by address.
type Registry struct {
	buckets uint8
	oracles cmap.ConcurrentMap[string, types.RegisteredOracle]
}

// New returns an empty registry that accepts indexes in [0, buckets).
func New(buckets uint8) *Registry {
	return &Registry{
		buckets: buckets,
		oracles: cmap.New[types.RegisteredOracle](),
	}
}

// Register pays the stake for addr and stores the indexes the ledger assigned.
func (r *Registry) Register(ctx context.Context, registrar chain.Registrar, addr common.Address, stake *big.Int) (types.RegisteredOracle, error) {
	indexes, err := registrar.RegisterOracle(ctx, addr, stake)
	if err != nil {
		return types.RegisteredOracle{}, errorsmod.Wrapf(err, "register %s", addr.Hex())
	}
	if !indexes.InDomain(r.buckets) {
		return types.RegisteredOracle{}, errorsmod.Wrapf(types.ErrInvalidIndexes, "%s got %s, want entries below %d", addr.Hex(), indexes, r.buckets)
	}

	oracle := types.RegisteredOracle{Address: addr, Indexes: indexes}
	r.oracles.Set(addr.Hex(), oracle)

	return oracle, nil
}

// RegisterAll registers every address concurrently. Failures are logged and the account is left out.
// The returned channel is closed once every attempt has resolved.
func (r *Registry) RegisterAll(ctx context.Context, registrar chain.Registrar, addrs []common.Address, stake *big.Int) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		lop.ForEach(addrs, func(addr common.Address, _ int) {
			oracle, err := r.Register(ctx, registrar, addr, stake)
			if err != nil {
				log.Errorf("oracle registration failed: %v", err)
				telemetry.IncrCounter(telemetry.KeyRegistrationFailure)
				return
			}

			log.Infof("oracle registered: %s indexes=%s", oracle.Address.Hex(), oracle.Indexes)
			telemetry.IncrCounter(telemetry.KeyRegistrationSuccess)
			telemetry.SetGauge(telemetry.KeyRegistrySize, float32(r.Len()))
		})

		log.Infof("registration finished: %d of %d oracles registered", r.Len(), len(addrs))
	}()

	return done
}

// AllOracles returns a snapshot in no particular order.
func (r *Registry) AllOracles() []types.RegisteredOracle {
	out := make([]types.RegisteredOracle, 0, r.oracles.Count())
	for item := range r.oracles.IterBuffered() {
		out = append(out, item.Val)
	}

	return out
}

func (r *Registry) Get(addr common.Address) (types.RegisteredOracle, bool) {
	return r.oracles.Get(addr.Hex())
}

func (r *Registry) Len() int {
	return r.oracles.Count()
}

func (r *Registry) Buckets() uint8 {
	return r.buckets
}
