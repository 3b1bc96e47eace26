package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	methodRegisterOracle       = "registerOracle"
	methodGetMyIndexes         = "getMyIndexes"
	methodSubmitOracleResponse = "submitOracleResponse"
	methodRegistrationFee      = "REGISTRATION_FEE"

	eventOracleRequest    = "OracleRequest"
	eventFlightStatusInfo = "FlightStatusInfo"
)

// flightSuretyAppABI is the subset of the FlightSuretyApp contract the oracles use.
const flightSuretyAppABI = `[
	{"type":"function","name":"registerOracle","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"getMyIndexes","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8[3]"}]},
	{"type":"function","name":"submitOracleResponse","stateMutability":"nonpayable","inputs":[
		{"name":"index","type":"uint8"},
		{"name":"airline","type":"address"},
		{"name":"flight","type":"string"},
		{"name":"timestamp","type":"uint256"},
		{"name":"statusCode","type":"uint8"}
	],"outputs":[]},
	{"type":"function","name":"REGISTRATION_FEE","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"event","name":"OracleRequest","anonymous":false,"inputs":[
		{"name":"index","type":"uint8","indexed":false},
		{"name":"airline","type":"address","indexed":false},
		{"name":"flight","type":"string","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"FlightStatusInfo","anonymous":false,"inputs":[
		{"name":"airline","type":"address","indexed":false},
		{"name":"flight","type":"string","indexed":false},
		{"name":"timestamp","type":"uint256","indexed":false},
		{"name":"status","type":"uint8","indexed":false}
	]}
]`

var appABI = mustParseABI(flightSuretyAppABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// oracleRequestEvent mirrors OracleRequest for UnpackLog.
type oracleRequestEvent struct {
	Index     uint8
	Airline   common.Address
	Flight    string
	Timestamp *big.Int
}

// flightStatusInfoEvent mirrors FlightStatusInfo for UnpackLog.
type flightStatusInfoEvent struct {
	Airline   common.Address
	Flight    string
	Timestamp *big.Int
	Status    uint8
}
