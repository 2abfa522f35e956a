package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pitrustlab/pitrust/internal/cache"
	"github.com/pitrustlab/pitrust/internal/metrics"
	"github.com/pitrustlab/pitrust/internal/retry"
	"github.com/pitrustlab/pitrust/internal/traces"
)

// maxRecentTransactions bounds the transaction list fetched per scan.
const maxRecentTransactions = 200

// Client fetches wallet data from the Pi ledger API.
type Client struct {
	baseURL string
	http    *http.Client
	cache   *cache.Cache // advisory, never a source of truth
	logger  *slog.Logger
}

// NewClient creates a ledger client. timeout bounds every outbound call;
// c may be nil to disable caching.
func NewClient(baseURL string, timeout time.Duration, c *cache.Cache, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		cache:   c,
		logger:  logger,
	}
}

// accountResponse is the ledger API account document.
type accountResponse struct {
	Address          string  `json:"address"`
	Balance          string  `json:"balance"`
	CreatedAt        string  `json:"created_at"`
	TransactionCount int     `json:"transaction_count"`
	BalanceFloat     float64 `json:"-"`
}

// paymentRecord is one entry of the ledger API payments listing.
type paymentRecord struct {
	ID        string  `json:"id"`
	CreatedAt string  `json:"created_at"`
	Amount    float64 `json:"amount"`
	From      string  `json:"from"`
	To        string  `json:"to"`
}

type paymentsResponse struct {
	Records []paymentRecord `json:"records"`
}

// FetchWallet returns the wallet aggregate for an address. Reads are
// idempotent, so transient failures are retried with backoff; a 404 is
// permanent and reported as ErrAccountNotFound. Results are served from
// the advisory cache when fresh.
func (c *Client) FetchWallet(ctx context.Context, address string) (*WalletAggregate, error) {
	ctx, span := traces.StartSpan(ctx, "chain.FetchWallet",
		attribute.String("wallet.address", address))
	defer span.End()

	if c.cache != nil {
		if v, ok := c.cache.Get("wallet:" + address); ok {
			metrics.LedgerFetchesTotal.WithLabelValues("cached").Inc()
			return v.(*WalletAggregate), nil
		}
	}

	var agg *WalletAggregate
	err := retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		var ferr error
		agg, ferr = c.fetchWalletOnce(ctx, address)
		return ferr
	})
	if err != nil {
		if err == ErrAccountNotFound {
			metrics.LedgerFetchesTotal.WithLabelValues("not_found").Inc()
		} else {
			metrics.LedgerFetchesTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.LedgerFetchesTotal.WithLabelValues("ok").Inc()
	if c.cache != nil {
		c.cache.Set("wallet:"+address, agg)
	}
	return agg, nil
}

func (c *Client) fetchWalletOnce(ctx context.Context, address string) (*WalletAggregate, error) {
	account, err := c.fetchAccount(ctx, address)
	if err != nil {
		return nil, err
	}

	records, err := c.fetchPayments(ctx, address)
	if err != nil {
		return nil, err
	}

	ageDays := 0
	if created, perr := time.Parse(time.RFC3339, account.CreatedAt); perr == nil {
		ageDays = int(time.Since(created).Hours() / 24)
		if ageDays < 0 {
			ageDays = 0
		}
	}

	txs := make([]Transaction, 0, len(records))
	for _, r := range records {
		tx := Transaction{
			ID:     r.ID,
			Amount: r.Amount,
		}
		if ts, perr := time.Parse(time.RFC3339, r.CreatedAt); perr == nil {
			tx.Timestamp = ts
		}
		if r.From == address {
			tx.Direction = DirectionOut
			tx.Counterparty = r.To
		} else {
			tx.Direction = DirectionIn
			tx.Counterparty = r.From
		}
		txs = append(txs, tx)
	}

	var balance float64
	_, _ = fmt.Sscanf(account.Balance, "%f", &balance)

	return &WalletAggregate{
		Address:               address,
		BalanceNative:         balance,
		AccountAgeDays:        ageDays,
		Transactions:          txs,
		TotalTransactionCount: account.TransactionCount,
	}, nil
}

func (c *Client) fetchAccount(ctx context.Context, address string) (*accountResponse, error) {
	u := fmt.Sprintf("%s/accounts/%s", c.baseURL, url.PathEscape(address))

	var account accountResponse
	if err := c.getJSON(ctx, u, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) fetchPayments(ctx context.Context, address string) ([]paymentRecord, error) {
	u := fmt.Sprintf("%s/accounts/%s/payments?order=desc&limit=%d",
		c.baseURL, url.PathEscape(address), maxRecentTransactions)

	var payments paymentsResponse
	if err := c.getJSON(ctx, u, &payments); err != nil {
		return nil, err
	}
	return payments.Records, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(ErrAccountNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: ledger returned %d", ErrLedgerUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return retry.Permanent(fmt.Errorf("%w: ledger returned %d", ErrLedgerUnavailable, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrLedgerUnavailable, err)
	}
	return nil
}
