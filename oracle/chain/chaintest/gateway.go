// Package chaintest provides an in-memory Gateway for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"

	"github.com/GPTx-global/flightsurety/oracle/chain"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// Gateway records every call and lets tests script failures per account.
type Gateway struct {
	mu sync.Mutex

	indexes       map[common.Address]types.Indexes
	registerErrs  map[common.Address]error
	submitErrs    map[common.Address]error
	registrations []common.Address
	submissions   []types.StatusResponse
	fee           *big.Int
	subscribeErrs []error
	blockNumber   uint64
	closed        bool

	requests event.Feed
	infos    event.Feed
	subs     []*subscription
}

var _ chain.Gateway = (*Gateway)(nil)

func New() *Gateway {
	return &Gateway{
		indexes:      make(map[common.Address]types.Indexes),
		registerErrs: make(map[common.Address]error),
		submitErrs:   make(map[common.Address]error),
		fee:          big.NewInt(params.Ether),
		blockNumber:  1,
	}
}

// SetIndexes fixes what RegisterOracle returns for addr. Unset accounts get indexes derived from their address bytes.
func (g *Gateway) SetIndexes(addr common.Address, idx types.Indexes) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.indexes[addr] = idx
}

func (g *Gateway) FailRegistration(addr common.Address, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registerErrs[addr] = err
}

func (g *Gateway) FailSubmission(addr common.Address, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitErrs[addr] = err
}

// FailSubscribe makes the next len(errs) subscribe calls fail in order.
func (g *Gateway) FailSubscribe(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribeErrs = append(g.subscribeErrs, errs...)
}

func (g *Gateway) SetRegistrationFee(fee *big.Int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fee = fee
}

// EmitRequest delivers req to every OracleRequest subscriber and returns how many received it.
func (g *Gateway) EmitRequest(req types.StatusRequest) int {
	return g.requests.Send(req)
}

func (g *Gateway) EmitFlightStatus(info types.FlightStatusInfo) int {
	return g.infos.Send(info)
}

// BreakSubscriptions fails every live subscription with err, the way a dropped connection does.
func (g *Gateway) BreakSubscriptions(err error) {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()

	for _, s := range subs {
		s.fail(err)
	}
}

func (g *Gateway) Registrations() []common.Address {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]common.Address(nil), g.registrations...)
}

func (g *Gateway) Submissions() []types.StatusResponse {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.StatusResponse(nil), g.submissions...)
}

func (g *Gateway) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *Gateway) RegisterOracle(ctx context.Context, from common.Address, stake *big.Int) (types.Indexes, error) {
	if err := ctx.Err(); err != nil {
		return types.Indexes{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.registrations = append(g.registrations, from)
	if err := g.registerErrs[from]; err != nil {
		return types.Indexes{}, err
	}
	if stake.Cmp(g.fee) < 0 {
		return types.Indexes{}, errorsmod.Wrap(types.ErrRegistration, "registration fee is required")
	}
	if idx, ok := g.indexes[from]; ok {
		return idx, nil
	}

	return types.Indexes{from[0] % 10, from[1] % 10, from[2] % 10}, nil
}

func (g *Gateway) RegistrationFee(ctx context.Context) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return new(big.Int).Set(g.fee), nil
}

func (g *Gateway) SubmitOracleResponse(ctx context.Context, resp types.StatusResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.submitErrs[resp.Oracle]; err != nil {
		return err
	}
	g.submissions = append(g.submissions, resp)

	return nil
}

func (g *Gateway) SubscribeOracleRequests(ctx context.Context, sink chan<- types.StatusRequest) (event.Subscription, error) {
	if err := g.nextSubscribeErr(); err != nil {
		return nil, err
	}
	return g.track(g.requests.Subscribe(sink)), nil
}

func (g *Gateway) SubscribeFlightStatusInfo(ctx context.Context, sink chan<- types.FlightStatusInfo) (event.Subscription, error) {
	if err := g.nextSubscribeErr(); err != nil {
		return nil, err
	}
	return g.track(g.infos.Subscribe(sink)), nil
}

func (g *Gateway) BlockNumber(ctx context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blockNumber, nil
}

func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

func (g *Gateway) nextSubscribeErr() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.subscribeErrs) == 0 {
		return nil
	}
	err := g.subscribeErrs[0]
	g.subscribeErrs = g.subscribeErrs[1:]

	return err
}

func (g *Gateway) track(inner event.Subscription) event.Subscription {
	s := &subscription{inner: inner, errc: make(chan error, 1)}

	g.mu.Lock()
	g.subs = append(g.subs, s)
	g.mu.Unlock()

	return s
}

// subscription wraps a feed subscription so tests can fail it.
type subscription struct {
	inner event.Subscription
	errc  chan error
	once  sync.Once
}

func (s *subscription) Err() <-chan error {
	return s.errc
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.inner.Unsubscribe()
		close(s.errc)
	})
}

func (s *subscription) fail(err error) {
	s.once.Do(func() {
		s.inner.Unsubscribe()
		s.errc <- err
		close(s.errc)
	})
}
