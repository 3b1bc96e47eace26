package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/retry"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// EthereumConfig is what Dial needs to reach the FlightSuretyApp contract.
type EthereumConfig struct {
	Endpoint   string
	AppAddress common.Address
	// ChainID of zero is queried from the node.
	ChainID  uint64
	GasLimit uint64
	// ResubscribeBackoff caps the wait between resubscription attempts.
	ResubscribeBackoff time.Duration
	Retry              *retry.RetryConfig
}

// Ethereum is the go-ethereum backed Gateway.
type Ethereum struct {
	rpcClient *rpc.Client
	client    *ethclient.Client
	contract  *bind.BoundContract
	keyring   *Keyring
	chainID   *big.Int
	config    EthereumConfig
}

var _ Gateway = (*Ethereum)(nil)

// Dial connects to the node over websocket, retrying transient failures.
func Dial(ctx context.Context, config EthereumConfig, keyring *Keyring) (*Ethereum, error) {
	if config.Retry == nil {
		config.Retry = retry.NetworkRetryConfig()
	}
	if config.ResubscribeBackoff == 0 {
		config.ResubscribeBackoff = 30 * time.Second
	}

	url := WebsocketURL(config.Endpoint)
	log.Infof("dialing %s", url)

	var rpcClient *rpc.Client
	err := retry.Do(ctx, config.Retry, func() error {
		c, err := rpc.DialContext(ctx, url)
		if err != nil {
			return errorsmod.Wrapf(types.ErrTransport, "dial %s: %v", url, err)
		}
		rpcClient = c
		return nil
	}, retry.DefaultIsRetryable)
	if err != nil {
		return nil, err
	}

	g, err := NewEthereum(ctx, rpcClient, config, keyring)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}

	return g, nil
}

// NewEthereum wraps an established rpc client.
func NewEthereum(ctx context.Context, rpcClient *rpc.Client, config EthereumConfig, keyring *Keyring) (*Ethereum, error) {
	client := ethclient.NewClient(rpcClient)

	chainID := new(big.Int).SetUint64(config.ChainID)
	if config.ChainID == 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			return nil, errorsmod.Wrapf(types.ErrTransport, "chain id: %v", err)
		}
		chainID = id
	}

	return &Ethereum{
		rpcClient: rpcClient,
		client:    client,
		contract:  bind.NewBoundContract(config.AppAddress, appABI, client, client, client),
		keyring:   keyring,
		chainID:   chainID,
		config:    config,
	}, nil
}

// WebsocketURL rewrites an http(s) endpoint to ws(s). Event subscriptions need a websocket.
func WebsocketURL(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	default:
		return endpoint
	}
}

func (e *Ethereum) ChainID() *big.Int {
	return new(big.Int).Set(e.chainID)
}

func (e *Ethereum) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := e.client.BlockNumber(ctx)
	if err != nil {
		return 0, errorsmod.Wrap(types.ErrTransport, err.Error())
	}
	return n, nil
}

func (e *Ethereum) RegistrationFee(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodRegistrationFee); err != nil {
		return nil, classifyError(err)
	}

	fee := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	return fee, nil
}

func (e *Ethereum) RegisterOracle(ctx context.Context, from common.Address, stake *big.Int) (types.Indexes, error) {
	var indexes types.Indexes

	opts, err := e.transactOpts(ctx, from)
	if err != nil {
		return indexes, err
	}
	opts.Value = stake

	if _, err := e.transact(ctx, from, opts, methodRegisterOracle); err != nil {
		return indexes, err
	}

	var out []interface{}
	if err := e.contract.Call(&bind.CallOpts{From: from, Context: ctx}, &out, methodGetMyIndexes); err != nil {
		return indexes, classifyError(err)
	}
	indexes = *abi.ConvertType(out[0], new([types.IndexCount]uint8)).(*[types.IndexCount]uint8)

	return indexes, nil
}

func (e *Ethereum) SubmitOracleResponse(ctx context.Context, resp types.StatusResponse) error {
	opts, err := e.transactOpts(ctx, resp.Oracle)
	if err != nil {
		return err
	}

	_, err = e.transact(ctx, resp.Oracle, opts, methodSubmitOracleResponse,
		resp.Index,
		resp.Airline,
		resp.Flight,
		new(big.Int).SetUint64(resp.Timestamp),
		uint8(resp.StatusCode),
	)

	return err
}

func (e *Ethereum) transactOpts(ctx context.Context, from common.Address) (*bind.TransactOpts, error) {
	acc, err := e.keyring.account(from)
	if err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(acc.key, e.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.GasLimit = e.config.GasLimit

	return opts, nil
}

// transact sends the call and waits for the receipt. The nonce lock is held only until the node accepts the tx.
func (e *Ethereum) transact(ctx context.Context, from common.Address, opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Receipt, error) {
	acc, err := e.keyring.account(from)
	if err != nil {
		return nil, err
	}

	acc.mu.Lock()
	tx, err := e.contract.Transact(opts, method, params...)
	acc.mu.Unlock()
	if err != nil {
		return nil, classifyError(err)
	}

	receipt, err := bind.WaitMined(ctx, e.client, tx)
	if err != nil {
		return nil, classifyError(err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return receipt, errorsmod.Wrapf(types.ErrTxReverted, "%s tx %s", method, tx.Hash().Hex())
	}
	log.Debugf("%s from %s mined in block %d", method, from.Hex(), receipt.BlockNumber.Uint64())

	return receipt, nil
}

func (e *Ethereum) SubscribeOracleRequests(ctx context.Context, sink chan<- types.StatusRequest) (event.Subscription, error) {
	return e.watch(ctx, eventOracleRequest, func(l ethtypes.Log) error {
		req, err := decodeOracleRequest(e.contract, l)
		if err != nil {
			return err
		}
		select {
		case sink <- req:
		case <-ctx.Done():
		}
		return nil
	})
}

func (e *Ethereum) SubscribeFlightStatusInfo(ctx context.Context, sink chan<- types.FlightStatusInfo) (event.Subscription, error) {
	return e.watch(ctx, eventFlightStatusInfo, func(l ethtypes.Log) error {
		info, err := decodeFlightStatusInfo(e.contract, l)
		if err != nil {
			return err
		}
		select {
		case sink <- info:
		case <-ctx.Done():
		}
		return nil
	})
}

// watch follows name from the head and resubscribes with backoff when the connection drops.
// The first subscription is made synchronously so that a bad endpoint or contract fails fast.
func (e *Ethereum) watch(ctx context.Context, name string, handle func(ethtypes.Log) error) (event.Subscription, error) {
	logs, sub, err := e.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, name)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrSubscription, "%s: %v", name, err)
	}

	first := true
	return event.ResubscribeErr(e.config.ResubscribeBackoff, func(rctx context.Context, lastErr error) (event.Subscription, error) {
		if !first {
			if lastErr != nil {
				log.Warnf("%s subscription dropped, resubscribing: %v", name, lastErr)
			}
			var err error
			logs, sub, err = e.contract.WatchLogs(&bind.WatchOpts{Context: rctx}, name)
			if err != nil {
				return nil, err
			}
		}
		first = false

		return forward(logs, sub, name, handle), nil
	}), nil
}

// forward pumps logs into handle until the inner subscription fails or the outer one is closed.
func forward(logs chan ethtypes.Log, sub event.Subscription, name string, handle func(ethtypes.Log) error) event.Subscription {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				if l.Removed {
					continue
				}
				if err := handle(l); err != nil {
					log.Errorf("failed to decode %s log in tx %s: %v", name, l.TxHash.Hex(), err)
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	})
}

func (e *Ethereum) Close() {
	e.client.Close()
}

func decodeOracleRequest(contract *bind.BoundContract, l ethtypes.Log) (types.StatusRequest, error) {
	var ev oracleRequestEvent
	if err := contract.UnpackLog(&ev, eventOracleRequest, l); err != nil {
		return types.StatusRequest{}, err
	}
	if ev.Timestamp == nil || !ev.Timestamp.IsUint64() {
		return types.StatusRequest{}, fmt.Errorf("timestamp out of range: %v", ev.Timestamp)
	}

	return types.StatusRequest{
		Index:     ev.Index,
		Airline:   ev.Airline,
		Flight:    ev.Flight,
		Timestamp: ev.Timestamp.Uint64(),
	}, nil
}

func decodeFlightStatusInfo(contract *bind.BoundContract, l ethtypes.Log) (types.FlightStatusInfo, error) {
	var ev flightStatusInfoEvent
	if err := contract.UnpackLog(&ev, eventFlightStatusInfo, l); err != nil {
		return types.FlightStatusInfo{}, err
	}
	if ev.Timestamp == nil || !ev.Timestamp.IsUint64() {
		return types.FlightStatusInfo{}, fmt.Errorf("timestamp out of range: %v", ev.Timestamp)
	}

	return types.FlightStatusInfo{
		Airline:   ev.Airline,
		Flight:    ev.Flight,
		Timestamp: ev.Timestamp.Uint64(),
		Status:    types.StatusCode(ev.Status),
	}, nil
}

// classifyError maps node and revert messages onto registered errors.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "insufficient funds"):
		return errorsmod.Wrap(types.ErrInsufficientFunds, msg)
	case strings.Contains(msg, "Index does not match"):
		return errorsmod.Wrap(types.ErrIneligible, msg)
	case strings.Contains(msg, "do not match oracle request"),
		strings.Contains(lower, "request is closed"):
		return errorsmod.Wrap(types.ErrRequestClosed, msg)
	case strings.Contains(lower, "revert"):
		return errorsmod.Wrap(types.ErrTxReverted, msg)
	default:
		return errorsmod.Wrap(types.ErrTransport, msg)
	}
}
