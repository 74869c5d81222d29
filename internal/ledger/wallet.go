package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds one agent's balance in one currency: available (spendable)
// and locked (reserved as collateral for open orders). Invariant:
// available >= 0, locked >= 0 at all times; their sum changes only
// through recorded Transactions.
type Wallet struct {
	ID        string
	AgentID   string
	Currency  string
	Available decimal.Decimal
	Locked    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransactionKind enumerates the immutable append-only log's record types.
type TransactionKind int

const (
	Deposit TransactionKind = iota
	Withdrawal
	EscrowLock
	EscrowRelease
	TradeDebit
	SettlementPayout
)

func (k TransactionKind) String() string {
	switch k {
	case Deposit:
		return "DEPOSIT"
	case Withdrawal:
		return "WITHDRAWAL"
	case EscrowLock:
		return "ESCROW_LOCK"
	case EscrowRelease:
		return "ESCROW_RELEASE"
	case TradeDebit:
		return "TRADE_DEBIT"
	case SettlementPayout:
		return "SETTLEMENT_PAYOUT"
	default:
		return "UNKNOWN"
	}
}

// Reference names the operation (kind + id) a transaction was recorded
// for, e.g. a lock referencing the order it backs.
type Reference struct {
	Kind string
	ID   string
}

// Transaction is an immutable, append-only record of one balance-changing
// operation against a wallet. Amount, AvailableBefore and AvailableAfter
// record the change to the available balance; LockedDelta records the
// change to the locked balance (positive for a lock, negative for a
// release or a trade debit). A TRADE_DEBIT touches only the locked
// balance, so its Amount is zero and AvailableBefore == AvailableAfter.
type Transaction struct {
	ID               string
	WalletID         string
	Kind             TransactionKind
	Amount           decimal.Decimal // signed: negative for debits
	AvailableBefore  decimal.Decimal
	AvailableAfter   decimal.Decimal
	LockedDelta      decimal.Decimal
	Reference        *Reference
	Description      string
	CreatedAt        time.Time
}
