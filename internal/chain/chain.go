// Package chain fetches wallet data from the Pi ledger API and aggregates
// raw transaction lists into the counters the reputation calculator consumes.
package chain

import (
	"errors"
	"time"
)

var (
	// ErrAccountNotFound means the wallet address has no ledger entry.
	ErrAccountNotFound = errors.New("ledger account not found")
	// ErrLedgerUnavailable wraps transport-level failures talking to the ledger.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// Direction of a transaction relative to the scanned wallet.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transaction is a single ledger operation involving the wallet.
type Transaction struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Amount       float64   `json:"amount"`
	Counterparty string    `json:"counterpartyAddress"`
	Direction    Direction `json:"direction"`
}

// WalletAggregate is a point-in-time view of a wallet as returned by the
// ledger data source.
type WalletAggregate struct {
	Address               string        `json:"address"`
	BalanceNative         float64       `json:"balanceNative"`
	AccountAgeDays        int           `json:"accountAgeDays"`
	Transactions          []Transaction `json:"transactions"`
	TotalTransactionCount int           `json:"totalTransactionCount"`
}
