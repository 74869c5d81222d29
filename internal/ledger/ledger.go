// Package ledger is the escrow ledger: the only writer of wallet
// balances. Every balance-changing operation appends one immutable
// transaction.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// walletEntry pairs a wallet with the mutex that serializes every
// mutation against it: every wallet-mutating operation must be atomic at
// the granularity of one wallet, so concurrent calls on the same wallet
// serialize through this mutex rather than a global lock.
type walletEntry struct {
	mu     sync.Mutex
	wallet *Wallet
	log    []*Transaction
}

// Ledger owns every wallet, its append-only transaction log, the trade
// escrow table, and the idempotency set for external deposits.
type Ledger struct {
	mu      sync.RWMutex // guards the wallets map's structure (creation), not balances
	wallets map[string]*walletEntry

	escrowMu sync.Mutex
	escrow   map[string]*TradeEscrow

	sessionMu sync.Mutex
	sessions  map[string]bool
}

func New() *Ledger {
	return &Ledger{
		wallets:  make(map[string]*walletEntry),
		escrow:   make(map[string]*TradeEscrow),
		sessions: make(map[string]bool),
	}
}

func (l *Ledger) entry(agentID string) (*walletEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.wallets[agentID]
	return e, ok
}

// CreateWallet fails if a wallet already exists for the agent; records a
// DEPOSIT if initial > 0.
func (l *Ledger) CreateWallet(agentID, currency string, initial decimal.Decimal) (*Wallet, error) {
	l.mu.Lock()
	if _, exists := l.wallets[agentID]; exists {
		l.mu.Unlock()
		return nil, ErrWalletExists
	}
	now := time.Now()
	w := &Wallet{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Currency:  currency,
		Available: decimal.Zero,
		Locked:    decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e := &walletEntry{wallet: w}
	l.wallets[agentID] = e
	l.mu.Unlock()

	if initial.GreaterThan(decimal.Zero) {
		e.mu.Lock()
		l.appendDeposit(e, initial, "initial deposit")
		e.mu.Unlock()
	}
	return w, nil
}

// appendDeposit credits available and appends a DEPOSIT transaction.
// Caller holds e.mu.
func (l *Ledger) appendDeposit(e *walletEntry, amount decimal.Decimal, description string) *Transaction {
	before := e.wallet.Available
	e.wallet.Available = e.wallet.Available.Add(amount)
	e.wallet.UpdatedAt = time.Now()
	tx := &Transaction{
		ID:              uuid.New().String(),
		WalletID:        e.wallet.ID,
		Kind:            Deposit,
		Amount:          amount,
		AvailableBefore: before,
		AvailableAfter:  e.wallet.Available,
		Description:     description,
		CreatedAt:       time.Now(),
	}
	e.log = append(e.log, tx)
	return tx
}

// Deposit requires amount > 0 and an existing wallet; credits available.
func (l *Ledger) Deposit(agentID string, amount decimal.Decimal, description string) (*Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNonPositiveAmount
	}
	e, ok := l.entry(agentID)
	if !ok {
		return nil, ErrUnknownWallet
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return l.appendDeposit(e, amount, description), nil
}

// Withdraw requires amount > 0 and available >= amount; debits available.
func (l *Ledger) Withdraw(agentID string, amount decimal.Decimal, description string) (*Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNonPositiveAmount
	}
	e, ok := l.entry(agentID)
	if !ok {
		return nil, ErrUnknownWallet
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wallet.Available.LessThan(amount) {
		return nil, ErrInsufficientAvail
	}
	before := e.wallet.Available
	e.wallet.Available = e.wallet.Available.Sub(amount)
	e.wallet.UpdatedAt = time.Now()
	tx := &Transaction{
		ID:              uuid.New().String(),
		WalletID:        e.wallet.ID,
		Kind:            Withdrawal,
		Amount:          amount.Neg(),
		AvailableBefore: before,
		AvailableAfter:  e.wallet.Available,
		Description:     description,
		CreatedAt:       time.Now(),
	}
	e.log = append(e.log, tx)
	return tx, nil
}

// DepositFromExternal is idempotent at the granularity of sessionID: if
// sessionID was previously observed, the call fails with
// ErrDuplicateSession and no side effects. Otherwise the session id is
// recorded before the credit; the credit auto-creates the wallet if
// absent.
func (l *Ledger) DepositFromExternal(agentID string, amount decimal.Decimal, sessionID string) (*Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNonPositiveAmount
	}

	l.sessionMu.Lock()
	if l.sessions[sessionID] {
		l.sessionMu.Unlock()
		return nil, ErrDuplicateSession
	}
	l.sessions[sessionID] = true
	l.sessionMu.Unlock()

	e, ok := l.entry(agentID)
	if !ok {
		var err error
		e, err = l.getOrCreateForDeposit(agentID)
		if err != nil {
			return nil, err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	tx := l.appendDeposit(e, amount, "external deposit: "+sessionID)
	return tx, nil
}

func (l *Ledger) getOrCreateForDeposit(agentID string) (*walletEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, exists := l.wallets[agentID]; exists {
		return e, nil
	}
	now := time.Now()
	w := &Wallet{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Currency:  "USD",
		Available: decimal.Zero,
		Locked:    decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	e := &walletEntry{wallet: w}
	l.wallets[agentID] = e
	return e, nil
}

// LockResult is the outcome of Lock: the one ledger operation that
// returns a result variant instead of signaling a fault, because the
// engine treats insufficient funds as a placement rejection rather than
// an exception.
type LockResult struct {
	Success       bool
	LockedAmount  decimal.Decimal
	TransactionID string
	Error         error
}

// Lock requires amount > 0, wallet exists, available >= amount. Moves
// amount from available to locked; appends ESCROW_LOCK.
func (l *Ledger) Lock(agentID string, amount decimal.Decimal, refKind, refID string) LockResult {
	if amount.LessThanOrEqual(decimal.Zero) {
		return LockResult{Success: false, Error: ErrNonPositiveAmount}
	}
	e, ok := l.entry(agentID)
	if !ok {
		return LockResult{Success: false, Error: ErrUnknownWallet}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wallet.Available.LessThan(amount) {
		return LockResult{Success: false, Error: ErrInsufficientAvail}
	}
	before := e.wallet.Available
	e.wallet.Available = e.wallet.Available.Sub(amount)
	e.wallet.Locked = e.wallet.Locked.Add(amount)
	e.wallet.UpdatedAt = time.Now()
	tx := &Transaction{
		ID:              uuid.New().String(),
		WalletID:        e.wallet.ID,
		Kind:            EscrowLock,
		Amount:          amount.Neg(),
		AvailableBefore: before,
		AvailableAfter:  e.wallet.Available,
		LockedDelta:     amount,
		Reference:       &Reference{Kind: refKind, ID: refID},
		CreatedAt:       time.Now(),
	}
	e.log = append(e.log, tx)
	return LockResult{Success: true, LockedAmount: amount, TransactionID: tx.ID}
}

// Release requires amount > 0 and locked >= amount. Moves amount from
// locked to available; appends ESCROW_RELEASE.
func (l *Ledger) Release(agentID string, amount decimal.Decimal, refKind, refID string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositiveAmount
	}
	e, ok := l.entry(agentID)
	if !ok {
		return ErrUnknownWallet
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wallet.Locked.LessThan(amount) {
		return ErrInsufficientLocked
	}
	before := e.wallet.Available
	e.wallet.Locked = e.wallet.Locked.Sub(amount)
	e.wallet.Available = e.wallet.Available.Add(amount)
	e.wallet.UpdatedAt = time.Now()
	tx := &Transaction{
		ID:              uuid.New().String(),
		WalletID:        e.wallet.ID,
		Kind:            EscrowRelease,
		Amount:          amount,
		AvailableBefore: before,
		AvailableAfter:  e.wallet.Available,
		LockedDelta:     amount.Neg(),
		Reference:       &Reference{Kind: refKind, ID: refID},
		CreatedAt:       time.Now(),
	}
	e.log = append(e.log, tx)
	return nil
}

// TransferToTradeEscrow requires locked >= amount. Debits locked (total
// wallet value falls by amount); appends TRADE_DEBIT. Upserts the
// trade-escrow record, accumulating the contribution. side must be
// "buyer" or "seller".
func (l *Ledger) TransferToTradeEscrow(agentID string, amount decimal.Decimal, tradeID, side string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrNonPositiveAmount
	}
	e, ok := l.entry(agentID)
	if !ok {
		return ErrUnknownWallet
	}
	e.mu.Lock()
	if e.wallet.Locked.LessThan(amount) {
		e.mu.Unlock()
		return ErrInsufficientLocked
	}
	before := e.wallet.Available
	e.wallet.Locked = e.wallet.Locked.Sub(amount)
	e.wallet.UpdatedAt = time.Now()
	tx := &Transaction{
		ID:              uuid.New().String(),
		WalletID:        e.wallet.ID,
		Kind:            TradeDebit,
		Amount:          decimal.Zero, // available is untouched; locked-only move
		AvailableBefore: before,
		AvailableAfter:  before,
		LockedDelta:     amount.Neg(),
		Reference:       &Reference{Kind: "trade", ID: tradeID},
		Description:     side + " contribution to trade escrow",
		CreatedAt:       time.Now(),
	}
	e.log = append(e.log, tx)
	e.mu.Unlock()

	l.escrowMu.Lock()
	defer l.escrowMu.Unlock()
	esc, exists := l.escrow[tradeID]
	if !exists {
		esc = &TradeEscrow{TradeID: tradeID, BuyerAmount: decimal.Zero, SellerAmount: decimal.Zero, CreatedAt: time.Now()}
		l.escrow[tradeID] = esc
	}
	if side == "buyer" {
		esc.BuyerAmount = esc.BuyerAmount.Add(amount)
	} else {
		esc.SellerAmount = esc.SellerAmount.Add(amount)
	}
	return nil
}

// SettlePosition credits winner's available by payout; appends
// SETTLEMENT_PAYOUT to both winner and loser (a zero-amount record on the
// loser side preserves the audit trail). Driving every resident order of
// the market to CANCELLED/released first is the caller's responsibility.
// The winner is credited the given payout as is: no trade-escrow record
// is read, checked against the payout, or reduced.
func (l *Ledger) SettlePosition(winnerAgentID, loserAgentID string, payout decimal.Decimal, marketID string) error {
	winner, ok := l.entry(winnerAgentID)
	if !ok {
		return ErrUnknownWallet
	}
	loser, ok := l.entry(loserAgentID)
	if !ok {
		return ErrUnknownWallet
	}

	winner.mu.Lock()
	before := winner.wallet.Available
	winner.wallet.Available = winner.wallet.Available.Add(payout)
	winner.wallet.UpdatedAt = time.Now()
	winTx := &Transaction{
		ID:              uuid.New().String(),
		WalletID:        winner.wallet.ID,
		Kind:            SettlementPayout,
		Amount:          payout,
		AvailableBefore: before,
		AvailableAfter:  winner.wallet.Available,
		Reference:       &Reference{Kind: "market", ID: marketID},
		CreatedAt:       time.Now(),
	}
	winner.log = append(winner.log, winTx)
	winner.mu.Unlock()

	loser.mu.Lock()
	loserBefore := loser.wallet.Available
	loseTx := &Transaction{
		ID:              uuid.New().String(),
		WalletID:        loser.wallet.ID,
		Kind:            SettlementPayout,
		Amount:          decimal.Zero,
		AvailableBefore: loserBefore,
		AvailableAfter:  loserBefore,
		Reference:       &Reference{Kind: "market", ID: marketID},
		Description:     "losing side of market settlement",
		CreatedAt:       time.Now(),
	}
	loser.log = append(loser.log, loseTx)
	loser.mu.Unlock()

	return nil
}

// GetBalance returns available, locked and their sum for agentID.
func (l *Ledger) GetBalance(agentID string) (available, locked, total decimal.Decimal, err error) {
	e, ok := l.entry(agentID)
	if !ok {
		return decimal.Zero, decimal.Zero, decimal.Zero, ErrUnknownWallet
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wallet.Available, e.wallet.Locked, e.wallet.Available.Add(e.wallet.Locked), nil
}

// GetTransactions returns the most recent limit transactions for agentID,
// newest first.
func (l *Ledger) GetTransactions(agentID string, limit int) ([]*Transaction, error) {
	e, ok := l.entry(agentID)
	if !ok {
		return nil, ErrUnknownWallet
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.log)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*Transaction, limit)
	for i := 0; i < limit; i++ {
		out[i] = e.log[n-1-i]
	}
	return out, nil
}

// TradeEscrowFor returns the trade-escrow record for tradeID, if any.
func (l *Ledger) TradeEscrowFor(tradeID string) (*TradeEscrow, bool) {
	l.escrowMu.Lock()
	defer l.escrowMu.Unlock()
	esc, ok := l.escrow[tradeID]
	return esc, ok
}
