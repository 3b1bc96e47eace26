package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/suite"

	"github.com/GPTx-global/flightsurety/oracle/types"
)

const testBlock = 7

// fakeNode serves the eth namespace calls the gateway makes.
type fakeNode struct {
	chainID *big.Int

	mu       sync.Mutex
	nonces   map[common.Address]uint64
	sent     []sentTx
	receipts map[common.Hash]*ethtypes.Receipt
	indexes  map[common.Address][types.IndexCount]uint8
	calls    []callArgs
	fee      *big.Int
	revert   bool
	notifier *rpc.Notifier
	sub      *rpc.Subscription
}

type sentTx struct {
	from common.Address
	tx   *ethtypes.Transaction
}

type callArgs struct {
	From common.Address  `json:"from"`
	To   *common.Address `json:"to"`
	Data hexutil.Bytes   `json:"data"`
}

func newFakeNode(chainID int64) *fakeNode {
	return &fakeNode{
		chainID:  big.NewInt(chainID),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		indexes:  make(map[common.Address][types.IndexCount]uint8),
		fee:      big.NewInt(params.Ether),
	}
}

func (n *fakeNode) ChainId() *hexutil.Big {
	return (*hexutil.Big)(n.chainID)
}

func (n *fakeNode) BlockNumber() hexutil.Uint64 {
	return testBlock
}

func (n *fakeNode) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(params.GWei))
}

// GetBlockByNumber returns a pre-London head so the gateway builds legacy transactions.
func (n *fakeNode) GetBlockByNumber(number string, full bool) *ethtypes.Header {
	return &ethtypes.Header{
		Number:     big.NewInt(testBlock),
		Difficulty: big.NewInt(1),
		GasLimit:   30_000_000,
	}
}

func (n *fakeNode) GetTransactionCount(addr common.Address, block string) hexutil.Uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return hexutil.Uint64(n.nonces[addr])
}

func (n *fakeNode) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	tx := new(ethtypes.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(n.chainID), tx)
	if err != nil {
		return common.Hash{}, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if tx.Nonce() != n.nonces[from] {
		return common.Hash{}, fmt.Errorf("nonce too low: got %d, want %d", tx.Nonce(), n.nonces[from])
	}
	n.nonces[from]++
	n.sent = append(n.sent, sentTx{from: from, tx: tx})

	status := ethtypes.ReceiptStatusSuccessful
	if n.revert {
		status = ethtypes.ReceiptStatusFailed
	}
	n.receipts[tx.Hash()] = &ethtypes.Receipt{
		Status:            status,
		CumulativeGasUsed: 21_000,
		GasUsed:           21_000,
		Logs:              []*ethtypes.Log{},
		TxHash:            tx.Hash(),
		BlockNumber:       big.NewInt(testBlock),
	}

	return tx.Hash(), nil
}

func (n *fakeNode) GetTransactionReceipt(hash common.Hash) *ethtypes.Receipt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.receipts[hash]
}

func (n *fakeNode) Call(args callArgs, block string) (hexutil.Bytes, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, args)
	if len(args.Data) < 4 {
		return nil, errors.New("missing method selector")
	}
	method, err := appABI.MethodById(args.Data[:4])
	if err != nil {
		return nil, err
	}

	var out []byte
	switch method.Name {
	case methodGetMyIndexes:
		out, err = method.Outputs.Pack(n.indexes[args.From])
	case methodRegistrationFee:
		out, err = method.Outputs.Pack(n.fee)
	default:
		err = fmt.Errorf("unexpected call to %s", method.Name)
	}

	return out, err
}

// Logs serves eth_subscribe("logs"). Only the latest subscription receives emitted logs.
func (n *fakeNode) Logs(ctx context.Context, crit map[string]interface{}) (*rpc.Subscription, error) {
	notifier, ok := rpc.NotifierFromContext(ctx)
	if !ok {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()

	n.mu.Lock()
	n.notifier, n.sub = notifier, sub
	n.mu.Unlock()

	return sub, nil
}

func (n *fakeNode) emit(l ethtypes.Log) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sub == nil {
		return errors.New("no log subscription")
	}
	return n.notifier.Notify(n.sub.ID, l)
}

func (n *fakeNode) setIndexes(addr common.Address, idx [types.IndexCount]uint8) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.indexes[addr] = idx
}

func (n *fakeNode) setRevert(revert bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.revert = revert
}

func (n *fakeNode) sentTxs() []sentTx {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentTx(nil), n.sent...)
}

func (n *fakeNode) lastCall() callArgs {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[len(n.calls)-1]
}

func eventLog(name string, args ...interface{}) (ethtypes.Log, error) {
	ev := appABI.Events[name]
	data, err := ev.Inputs.Pack(args...)
	if err != nil {
		return ethtypes.Log{}, err
	}

	return ethtypes.Log{
		Address: testApp,
		Topics:  []common.Hash{ev.ID},
		Data:    data,
	}, nil
}

type NodeTestSuite struct {
	suite.Suite
	node     *fakeNode
	server   *rpc.Server
	accounts []common.Address
	gateway  *Ethereum
	ctx      context.Context
	cancel   context.CancelFunc
}

func TestNodeSuite(t *testing.T) {
	suite.Run(t, new(NodeTestSuite))
}

func (suite *NodeTestSuite) SetupTest() {
	suite.ctx, suite.cancel = context.WithTimeout(context.Background(), 10*time.Second)

	suite.node = newFakeNode(1337)
	suite.server = rpc.NewServer()
	suite.Require().NoError(suite.server.RegisterName("eth", suite.node))

	kr, err := NewKeyring(truffleMnemonic, 0, 2)
	suite.Require().NoError(err)
	suite.accounts = kr.Addresses()

	suite.gateway, err = NewEthereum(suite.ctx, rpc.DialInProc(suite.server), EthereumConfig{
		AppAddress:         testApp,
		GasLimit:           5_000_000,
		ResubscribeBackoff: 50 * time.Millisecond,
	}, kr)
	suite.Require().NoError(err)
}

func (suite *NodeTestSuite) TearDownTest() {
	suite.gateway.Close()
	suite.server.Stop()
	suite.cancel()
}

func (suite *NodeTestSuite) TestQueriesChainIDAndHead() {
	suite.Equal(int64(1337), suite.gateway.ChainID().Int64())

	head, err := suite.gateway.BlockNumber(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(uint64(testBlock), head)

	fee, err := suite.gateway.RegistrationFee(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(0, fee.Cmp(big.NewInt(params.Ether)))
}

func (suite *NodeTestSuite) TestRegisterOracle() {
	oracle := suite.accounts[0]
	suite.node.setIndexes(oracle, [types.IndexCount]uint8{2, 5, 9})
	stake := big.NewInt(params.Ether)

	indexes, err := suite.gateway.RegisterOracle(suite.ctx, oracle, stake)
	suite.Require().NoError(err)
	suite.Equal(types.Indexes{2, 5, 9}, indexes)

	sent := suite.node.sentTxs()
	suite.Require().Len(sent, 1)
	tx := sent[0].tx
	suite.Equal(oracle, sent[0].from)
	suite.Equal(testApp, *tx.To())
	suite.Equal(0, tx.Value().Cmp(stake))
	suite.Equal(uint64(5_000_000), tx.Gas())

	calldata, err := appABI.Pack(methodRegisterOracle)
	suite.Require().NoError(err)
	suite.Equal(calldata, tx.Data())

	// getMyIndexes answers for msg.sender, so the call must come from the oracle
	call := suite.node.lastCall()
	suite.Equal(oracle, call.From)
	suite.Equal(appABI.Methods[methodGetMyIndexes].ID, []byte(call.Data))
}

func (suite *NodeTestSuite) TestSubmitOracleResponse() {
	resp := types.StatusResponse{
		Index:      5,
		Airline:    testAirline,
		Flight:     "ND1309",
		Timestamp:  1_700_000_000,
		StatusCode: types.StatusLateAirline,
		Oracle:     suite.accounts[1],
	}

	suite.Require().NoError(suite.gateway.SubmitOracleResponse(suite.ctx, resp))

	sent := suite.node.sentTxs()
	suite.Require().Len(sent, 1)
	suite.Equal(resp.Oracle, sent[0].from)
	suite.Zero(sent[0].tx.Value().Sign())

	calldata, err := appABI.Pack(methodSubmitOracleResponse, uint8(5), testAirline, "ND1309", big.NewInt(1_700_000_000), uint8(20))
	suite.Require().NoError(err)
	suite.Equal(calldata, sent[0].tx.Data())
}

func (suite *NodeTestSuite) TestRevertedReceipt() {
	suite.node.setRevert(true)

	err := suite.gateway.SubmitOracleResponse(suite.ctx, types.StatusResponse{
		Index:   1,
		Airline: testAirline,
		Flight:  "ND1309",
		Oracle:  suite.accounts[0],
	})
	suite.ErrorIs(err, types.ErrTxReverted)
	suite.Len(suite.node.sentTxs(), 1)
}

func (suite *NodeTestSuite) TestUnknownAccountSendsNothing() {
	err := suite.gateway.SubmitOracleResponse(suite.ctx, types.StatusResponse{Oracle: testAirline})
	suite.ErrorIs(err, types.ErrUnknownAccount)
	suite.Empty(suite.node.sentTxs())
}

func (suite *NodeTestSuite) TestConcurrentSubmissionsShareOneNonceSequence() {
	const n = 6
	oracle := suite.accounts[0]

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = suite.gateway.SubmitOracleResponse(suite.ctx, types.StatusResponse{
				Index:     uint8(i),
				Airline:   testAirline,
				Flight:    "ND1309",
				Timestamp: uint64(i),
				Oracle:    oracle,
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		suite.NoError(err)
	}

	sent := suite.node.sentTxs()
	suite.Require().Len(sent, n)
	nonces := make([]int, 0, n)
	for _, s := range sent {
		nonces = append(nonces, int(s.tx.Nonce()))
	}
	sort.Ints(nonces)
	suite.Equal([]int{0, 1, 2, 3, 4, 5}, nonces)
}

func (suite *NodeTestSuite) TestSubscriptionSkipsRemovedLogs() {
	sink := make(chan types.StatusRequest, 4)
	sub, err := suite.gateway.SubscribeOracleRequests(suite.ctx, sink)
	suite.Require().NoError(err)
	defer sub.Unsubscribe()

	removed, err := eventLog(eventOracleRequest, uint8(1), testAirline, "ND1309", big.NewInt(1_700_000_000))
	suite.Require().NoError(err)
	removed.Removed = true
	live, err := eventLog(eventOracleRequest, uint8(7), testAirline, "ND1309", big.NewInt(1_700_000_000))
	suite.Require().NoError(err)

	suite.Require().NoError(suite.node.emit(removed))
	suite.Require().NoError(suite.node.emit(live))

	select {
	case req := <-sink:
		suite.Equal(uint8(7), req.Index)
		suite.Equal(uint64(1_700_000_000), req.Timestamp)
	case <-time.After(5 * time.Second):
		suite.FailNow("no OracleRequest delivered")
	}

	select {
	case req := <-sink:
		suite.Failf("unexpected delivery", "%s", req)
	case <-time.After(100 * time.Millisecond):
	}
}

func (suite *NodeTestSuite) TestForwardEndsWithConnectionError() {
	logs := make(chan ethtypes.Log)
	drop := make(chan struct{})
	inner := event.NewSubscription(func(quit <-chan struct{}) error {
		select {
		case <-drop:
			return errors.New("websocket: close 1006")
		case <-quit:
			return nil
		}
	})

	handled := make(chan ethtypes.Log, 2)
	outer := forward(logs, inner, eventOracleRequest, func(l ethtypes.Log) error {
		handled <- l
		return nil
	})
	defer outer.Unsubscribe()

	logs <- ethtypes.Log{Index: 1, Removed: true}
	logs <- ethtypes.Log{Index: 2}
	suite.Equal(uint(2), (<-handled).Index)

	close(drop)
	select {
	case err := <-outer.Err():
		suite.ErrorContains(err, "close 1006")
	case <-time.After(5 * time.Second):
		suite.FailNow("forward did not report the dropped connection")
	}
	suite.Empty(handled)
}
