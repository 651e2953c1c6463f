package types

import (
	"cosmossdk.io/errors"
)

const codespace = "poolcore"

// Engine sentinel errors. Every failure is detected before any state
// mutation and is recoverable by the caller.
var (
	ErrInvalidPair                = errors.Register(codespace, 1, "unknown or invalid pair")
	ErrInvalidAsset               = errors.Register(codespace, 2, "asset does not belong to pair")
	ErrInvalidAmount              = errors.Register(codespace, 3, "invalid amount")
	ErrInsufficientLiquidity      = errors.Register(codespace, 4, "insufficient liquidity in pool")
	ErrSlippageExceeded           = errors.Register(codespace, 5, "output below caller minimum")
	ErrAlreadyBootstrapped        = errors.Register(codespace, 6, "pool already bootstrapped")
	ErrInsufficientShares         = errors.Register(codespace, 7, "insufficient liquidity shares")
	ErrInsufficientPendingBalance = errors.Register(codespace, 8, "insufficient pending balance")
	ErrNoPendingEntitlement       = errors.Register(codespace, 9, "no pending entitlement")
	ErrAlreadySettled             = errors.Register(codespace, 10, "settlement already executed")
	ErrArithmeticOverflow         = errors.Register(codespace, 11, "arithmetic overflow")
	ErrCustodyRejected            = errors.Register(codespace, 12, "custody program rejected transfer")
)
