package types

import (
	errorsmod "cosmossdk.io/errors"
)

// ModuleName is the codespace of the daemon's registered errors.
const ModuleName = "oracled"

// errors
var (
	ErrInvalidConfig     = errorsmod.Register(ModuleName, 2, "invalid configuration")
	ErrRegistration      = errorsmod.Register(ModuleName, 3, "oracle registration failed")
	ErrInsufficientFunds = errorsmod.Register(ModuleName, 4, "insufficient funds")
	ErrInvalidIndexes    = errorsmod.Register(ModuleName, 5, "invalid oracle indexes")
	ErrSubscription      = errorsmod.Register(ModuleName, 6, "event subscription failed")
	ErrSubmission        = errorsmod.Register(ModuleName, 7, "oracle response submission failed")
	ErrIneligible        = errorsmod.Register(ModuleName, 8, "oracle not eligible for request index")
	ErrRequestClosed     = errorsmod.Register(ModuleName, 9, "request is closed or already final")
	ErrTxReverted        = errorsmod.Register(ModuleName, 10, "transaction reverted")
	ErrUnknownAccount    = errorsmod.Register(ModuleName, 11, "unknown oracle account")
	ErrTransport         = errorsmod.Register(ModuleName, 12, "chain transport error")
)
