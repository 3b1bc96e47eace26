package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/GPTx-global/flightsurety/oracle/types"
)

// Registrar registers oracle accounts with the ledger.
type Registrar interface {
	// RegisterOracle pays stake from the account and returns the indexes the ledger assigned to it.
	RegisterOracle(ctx context.Context, from common.Address, stake *big.Int) (types.Indexes, error)
	RegistrationFee(ctx context.Context) (*big.Int, error)
}

// Responder submits oracle responses.
type Responder interface {
	SubmitOracleResponse(ctx context.Context, resp types.StatusResponse) error
}

// EventSource delivers ledger events from the chain head onward.
type EventSource interface {
	SubscribeOracleRequests(ctx context.Context, sink chan<- types.StatusRequest) (event.Subscription, error)
	SubscribeFlightStatusInfo(ctx context.Context, sink chan<- types.FlightStatusInfo) (event.Subscription, error)
}

// Gateway is the daemon's only view of the ledger.
type Gateway interface {
	Registrar
	Responder
	EventSource

	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}
