package ledger

import "errors"

// Error taxonomy for wallet operations. Wallet absence and precondition
// violations are fatal to the call; lock is the one recoverable path
// (the engine treats it as a placement rejection, not an exception).
var (
	ErrUnknownWallet      = errors.New("unknown wallet")
	ErrWalletExists       = errors.New("wallet already exists")
	ErrNonPositiveAmount  = errors.New("amount must be positive")
	ErrInsufficientAvail  = errors.New("insufficient available balance")
	ErrInsufficientLocked = errors.New("insufficient locked balance")
	ErrDuplicateSession   = errors.New("duplicate external deposit session")
)
