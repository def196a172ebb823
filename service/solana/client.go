package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	lookup "github.com/gagliardetto/solana-go/programs/address-lookup-table"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sponsorlab/gasless/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real Solana nodes.
type RPCClient interface {
	GetGenesisHash(ctx context.Context) (solana.Hash, error)

	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)

	GetMultipleAccounts(ctx context.Context, accounts ...solana.PublicKey) (*rpc.GetMultipleAccountsResult, error)

	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)

	GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error)

	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)

	SimulateTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)
}

// Client is the ledger facade used by the swap builder. It wraps the RPC
// client with domain-specific operations, structured logging, and metrics.
type Client struct {
	rpc      RPCClient
	logger   *slog.Logger
	metrics  *metrics.Metrics
	endpoint string // RPC endpoint identifier for metrics and genesis caching
}

// NewClient creates a new ledger facade.
// The endpoint parameter is used for metrics labeling and as the genesis cache key.
// If metrics is nil, no metrics will be recorded.
func NewClient(rpcClient RPCClient, endpoint string, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		rpc:      rpcClient,
		logger:   logger,
		metrics:  m,
		endpoint: endpoint,
	}
}

// Endpoint returns the RPC endpoint identifier this client was built with.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// GenesisHash fetches the cluster genesis hash. The value never changes for
// a live network; callers memoize it in the cache layer.
func (c *Client) GenesisHash(ctx context.Context) (string, error) {
	start := time.Now()
	hash, err := c.rpc.GetGenesisHash(ctx)
	c.record("GetGenesisHash", err, start)
	if err != nil {
		return "", fmt.Errorf("failed to get genesis hash: %w", err)
	}
	return hash.String(), nil
}

// AccountExists reports whether an account is currently allocated on-chain.
// The RPC layer signals absence with rpc.ErrNotFound rather than a nil result.
func (c *Client) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	start := time.Now()
	result, err := c.rpc.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		c.record("GetAccountInfo", nil, start)
		return false, nil
	}
	c.record("GetAccountInfo", err, start)
	if err != nil {
		return false, fmt.Errorf("failed to get account info for %s: %w", account, err)
	}
	return result != nil && result.Value != nil, nil
}

// FetchLookupTables batch-fetches address lookup tables and decodes their
// on-chain state. Tables that are absent on-chain are silently dropped:
// missing tables degrade to inline account references, they do not fail a
// build.
func (c *Client) FetchLookupTables(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	tables := make(map[solana.PublicKey]solana.PublicKeySlice)
	if len(addresses) == 0 {
		return tables, nil
	}

	start := time.Now()
	result, err := c.rpc.GetMultipleAccounts(ctx, addresses...)
	c.record("GetMultipleAccounts", err, start)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lookup tables: %w", err)
	}

	for i, account := range result.Value {
		if account == nil || account.Data == nil {
			c.logger.DebugContext(ctx, "lookup table not found on-chain, skipping",
				"table", addresses[i].String(),
			)
			continue
		}
		state, err := lookup.DecodeAddressLookupTableState(account.Data.GetBinary())
		if err != nil {
			c.logger.WarnContext(ctx, "failed to decode lookup table state, skipping",
				"table", addresses[i].String(),
				"error", err,
			)
			continue
		}
		tables[addresses[i]] = state.Addresses
	}

	if c.metrics != nil {
		c.metrics.RecordLookupTablesResolved(c.endpoint, float64(len(tables)))
	}

	return tables, nil
}

// LatestBlockhash returns a recent blockhash to anchor a new message.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	start := time.Now()
	result, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.record("GetLatestBlockhash", err, start)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return result.Value.Blockhash, nil
}

// FeeForMessage asks the cluster what the given compiled message would cost.
// messageBytes is the canonical serialized message; it is base64-encoded on
// the wire.
func (c *Client) FeeForMessage(ctx context.Context, messageBytes []byte) (uint64, error) {
	start := time.Now()
	result, err := c.rpc.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(messageBytes), rpc.CommitmentFinalized)
	c.record("GetFeeForMessage", err, start)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate message fee: %w", err)
	}
	if result.Value == nil {
		return 0, fmt.Errorf("cluster returned no fee for message")
	}
	if c.metrics != nil {
		c.metrics.RecordNetworkFee(c.endpoint, float64(*result.Value))
	}
	return *result.Value, nil
}

// RentExemptBalance returns the minimum lamport balance an account of the
// given size must hold to stay allocated.
func (c *Client) RentExemptBalance(ctx context.Context, dataSize uint64) (uint64, error) {
	start := time.Now()
	balance, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, rpc.CommitmentFinalized)
	c.record("GetMinimumBalanceForRentExemption", err, start)
	if err != nil {
		return 0, fmt.Errorf("failed to get rent-exempt balance: %w", err)
	}
	return balance, nil
}

// Simulate dry-runs the transaction against current cluster state. Signature
// verification is disabled because neither the user nor the fee payer has
// signed yet.
func (c *Client) Simulate(ctx context.Context, tx *solana.Transaction) error {
	start := time.Now()
	result, err := c.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:              false,
		ReplaceRecentBlockhash: true,
		Commitment:             rpc.CommitmentProcessed,
	})
	c.record("SimulateTransaction", err, start)
	if err != nil {
		return fmt.Errorf("simulation request failed: %w", err)
	}
	if result.Value != nil && result.Value.Err != nil {
		c.logger.DebugContext(ctx, "simulation rejected transaction",
			"err", result.Value.Err,
			"logs", result.Value.Logs,
		)
		return fmt.Errorf("simulation rejected transaction: %v", result.Value.Err)
	}
	return nil
}

// record emits call metrics for a single RPC invocation.
func (c *Client) record(method string, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, c.endpoint, time.Since(start).Seconds())
}
