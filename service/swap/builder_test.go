package swap

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sponsorlab/gasless/service/cache"
	"github.com/sponsorlab/gasless/service/config"
	"github.com/sponsorlab/gasless/service/jupiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLedger struct {
	genesis      string
	genesisErr   error
	genesisCalls int

	accountExists bool
	rent          uint64
	networkFee    uint64
	blockhash     solana.Hash

	simulateErr error
	simulated   *solana.Transaction
	feeMessages [][]byte
}

func (m *mockLedger) Endpoint() string { return "rpc.test" }

func (m *mockLedger) GenesisHash(ctx context.Context) (string, error) {
	m.genesisCalls++
	return m.genesis, m.genesisErr
}

func (m *mockLedger) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	return m.accountExists, nil
}

func (m *mockLedger) FetchLookupTables(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	return map[solana.PublicKey]solana.PublicKeySlice{}, nil
}

func (m *mockLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return m.blockhash, nil
}

func (m *mockLedger) FeeForMessage(ctx context.Context, messageBytes []byte) (uint64, error) {
	m.feeMessages = append(m.feeMessages, messageBytes)
	return m.networkFee, nil
}

func (m *mockLedger) RentExemptBalance(ctx context.Context, dataSize uint64) (uint64, error) {
	return m.rent, nil
}

func (m *mockLedger) Simulate(ctx context.Context, tx *solana.Transaction) error {
	m.simulated = tx
	return m.simulateErr
}

type mockRouter struct {
	quote       *jupiter.Quote
	quoteErr    error
	quoteAmount uint64

	bundle    *jupiter.InstructionBundle
	bundleErr error
}

func (m *mockRouter) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (*jupiter.Quote, error) {
	m.quoteAmount = amount
	return m.quote, m.quoteErr
}

func (m *mockRouter) SwapInstructions(ctx context.Context, quote *jupiter.Quote, user solana.PublicKey) (*jupiter.InstructionBundle, error) {
	return m.bundle, m.bundleErr
}

const testGenesis = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d"

func testConfig() *config.Config {
	return &config.Config{
		ExpectedGenesisHash: testGenesis,
		SlippageBps:         50,
		PlatformFeeBps:      25,
		SameMintTimeout:     3 * time.Second,
	}
}

func testLedger() *mockLedger {
	return &mockLedger{
		genesis:    testGenesis,
		rent:       2_039_280,
		networkFee: 5_000,
		blockhash:  solana.MustHashFromBase58("GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W"),
	}
}

func testRouter() *mockRouter {
	return &mockRouter{
		quote:  &jupiter.Quote{OutAmount: "100000", Raw: []byte(`{"outAmount":"100000"}`)},
		bundle: testBundle(),
	}
}

func newTestBuilder(t *testing.T, ledger Ledger, router Router, store cache.Store, schedule config.FeeSchedule, cfg *config.Config) *Builder {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return NewBuilder(ledger, router, store, schedule, key, cfg, nil, slog.Default())
}

func testRequest() BuildRequest {
	return BuildRequest{
		UserAddress: solana.NewWallet().PublicKey().String(),
		SourceMint:  solana.NewWallet().PublicKey().String(),
		Amount:      10_000,
	}
}

// findSystemTransfer returns the lamports of the single system transfer in
// the compiled message.
func findSystemTransfer(t *testing.T, tx *solana.Transaction) uint64 {
	t.Helper()
	for _, ix := range tx.Message.Instructions {
		program := tx.Message.AccountKeys[ix.ProgramIDIndex]
		if !program.Equals(solana.SystemProgramID) {
			continue
		}
		require.Len(t, []byte(ix.Data), 12)
		require.Equal(t, uint32(2), binary.LittleEndian.Uint32(ix.Data[0:4]))
		return binary.LittleEndian.Uint64(ix.Data[4:12])
	}
	t.Fatal("no system transfer instruction in compiled message")
	return 0
}

func TestBuild_Success(t *testing.T) {
	ledger := testLedger()
	router := testRouter()
	store := cache.NewMemoryStore()
	builder := newTestBuilder(t, ledger, router, store, nil, testConfig())
	req := testRequest()

	result, err := builder.Build(context.Background(), req)
	require.NoError(t, err)

	// The token must verify against the exact returned message bytes.
	ok, err := VerifyMessageToken(result.MessageToken, result.MessageBytes, builder.FeePayer())
	require.NoError(t, err)
	assert.True(t, ok)

	// The reimbursement covers rent float, platform fee, and the measured
	// network fee. 25 bp of 100000 is 250.
	assert.Equal(t, uint64(250), result.PlatformFee)
	assert.Equal(t, uint64(5_000), result.NetworkFee)
	assert.Equal(t, uint64(2_039_280), result.RentFloat)
	transfer := findSystemTransfer(t, result.Transaction)
	assert.Equal(t, result.RentFloat+result.PlatformFee+result.NetworkFee, transfer)

	// The fee payer is the transaction's first account and the fee was
	// measured against a message of the same shape.
	assert.Equal(t, builder.FeePayer(), result.Transaction.Message.AccountKeys[0])
	require.Len(t, ledger.feeMessages, 1)
	assert.Equal(t, len(result.MessageBytes), len(ledger.feeMessages[0]))

	// No fee policy: the whole amount is routed.
	assert.Equal(t, uint64(10_000), router.quoteAmount)
	assert.Zero(t, result.BurnFee)
	assert.Zero(t, result.TransferFee)

	assert.NotEmpty(t, result.TransactionBase64)
	assert.NotNil(t, ledger.simulated)

	// Success arms the rate guard.
	_, ok2, err := store.Get(context.Background(), cache.RateGuardKey(req.UserAddress, req.SourceMint))
	require.NoError(t, err)
	assert.True(t, ok2)
}

func TestBuild_WithFeePolicy(t *testing.T) {
	router := testRouter()
	store := cache.NewMemoryStore()
	req := testRequest()

	schedule := config.FeeSchedule{
		req.SourceMint: {
			Mint:          req.SourceMint,
			Decimals:      6,
			FeeAccount:    solana.NewWallet().PublicKey().String(),
			BurnFeeBp:     100, // 1%
			TransferFeeBp: 50,  // 0.5%
		},
	}
	builder := newTestBuilder(t, testLedger(), router, store, schedule, testConfig())

	result, err := builder.Build(context.Background(), req)
	require.NoError(t, err)

	// Burn comes out before routing, transfer fee does not.
	assert.Equal(t, uint64(100), result.BurnFee)
	assert.Equal(t, uint64(50), result.TransferFee)
	assert.Equal(t, uint64(9_900), router.quoteAmount)
}

func TestBuild_InvalidInput(t *testing.T) {
	builder := newTestBuilder(t, testLedger(), testRouter(), cache.NewMemoryStore(), nil, testConfig())

	req := testRequest()
	req.UserAddress = "not-an-address"
	_, err := builder.Build(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	req = testRequest()
	req.Amount = 0
	_, err = builder.Build(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	req = testRequest()
	req.Amount = -5
	_, err = builder.Build(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestBuild_WrongCluster(t *testing.T) {
	ledger := testLedger()
	ledger.genesis = "EtWTRABZaYq6iMfeYKouRu166VU2xqa1wcaWoxPkrZBG"
	builder := newTestBuilder(t, ledger, testRouter(), cache.NewMemoryStore(), nil, testConfig())

	_, err := builder.Build(context.Background(), testRequest())
	assert.True(t, errors.Is(err, ErrWrongCluster))
}

func TestBuild_GenesisMemoized(t *testing.T) {
	ledger := testLedger()
	cfg := testConfig()
	cfg.SameMintTimeout = 0 // allow back-to-back builds
	builder := newTestBuilder(t, ledger, testRouter(), cache.NewMemoryStore(), nil, cfg)

	_, err := builder.Build(context.Background(), testRequest())
	require.NoError(t, err)
	_, err = builder.Build(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, ledger.genesisCalls)
}

func TestBuild_RateLimited(t *testing.T) {
	store := cache.NewMemoryStore()
	builder := newTestBuilder(t, testLedger(), testRouter(), store, nil, testConfig())
	req := testRequest()

	// A build for the same pair just completed.
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	require.NoError(t, store.Set(context.Background(), cache.RateGuardKey(req.UserAddress, req.SourceMint), []byte(now)))

	_, err := builder.Build(context.Background(), req)
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestBuild_StaleRateGuardAllowsBuild(t *testing.T) {
	store := cache.NewMemoryStore()
	builder := newTestBuilder(t, testLedger(), testRouter(), store, nil, testConfig())
	req := testRequest()

	stale := strconv.FormatInt(time.Now().Add(-time.Minute).UnixMilli(), 10)
	require.NoError(t, store.Set(context.Background(), cache.RateGuardKey(req.UserAddress, req.SourceMint), []byte(stale)))

	_, err := builder.Build(context.Background(), req)
	require.NoError(t, err)
}

func TestBuild_PerRequestThrottleWindow(t *testing.T) {
	store := cache.NewMemoryStore()
	builder := newTestBuilder(t, testLedger(), testRouter(), store, nil, testConfig())
	req := testRequest()

	recent := strconv.FormatInt(time.Now().Add(-time.Minute).UnixMilli(), 10)
	require.NoError(t, store.Set(context.Background(), cache.RateGuardKey(req.UserAddress, req.SourceMint), []byte(recent)))

	// A minute-old entry passes the 3s default but not a wider window.
	req.ThrottleWindowMs = (5 * time.Minute).Milliseconds()
	_, err := builder.Build(context.Background(), req)
	assert.True(t, errors.Is(err, ErrRateLimited))

	// A negative window disables the guard entirely.
	fresh := strconv.FormatInt(time.Now().UnixMilli(), 10)
	require.NoError(t, store.Set(context.Background(), cache.RateGuardKey(req.UserAddress, req.SourceMint), []byte(fresh)))
	req.ThrottleWindowMs = -1
	_, err = builder.Build(context.Background(), req)
	require.NoError(t, err)
}

func TestBuild_AccountExists(t *testing.T) {
	ledger := testLedger()
	ledger.accountExists = true
	builder := newTestBuilder(t, ledger, testRouter(), cache.NewMemoryStore(), nil, testConfig())

	_, err := builder.Build(context.Background(), testRequest())
	assert.True(t, errors.Is(err, ErrAccountExists))
}

func TestBuild_RoutingFailure(t *testing.T) {
	router := testRouter()
	router.quoteErr = fmt.Errorf("no route found")
	builder := newTestBuilder(t, testLedger(), router, cache.NewMemoryStore(), nil, testConfig())

	_, err := builder.Build(context.Background(), testRequest())
	assert.True(t, errors.Is(err, ErrRoutingFailure))
	assert.Contains(t, err.Error(), "no route found")
}

func TestBuild_SimulationFailureDoesNotArmRateGuard(t *testing.T) {
	ledger := testLedger()
	ledger.simulateErr = fmt.Errorf("custom program error: 0x1771")
	store := cache.NewMemoryStore()
	builder := newTestBuilder(t, ledger, testRouter(), store, nil, testConfig())
	req := testRequest()

	_, err := builder.Build(context.Background(), req)
	assert.True(t, errors.Is(err, ErrSimulationFailure))

	_, ok, err := store.Get(context.Background(), cache.RateGuardKey(req.UserAddress, req.SourceMint))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuild_InvalidFeeConfig(t *testing.T) {
	req := testRequest()
	schedule := config.FeeSchedule{
		req.SourceMint: {Mint: req.SourceMint, FeeAmount: -10},
	}
	builder := newTestBuilder(t, testLedger(), testRouter(), cache.NewMemoryStore(), schedule, testConfig())

	_, err := builder.Build(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInvalidFeeConfig))
}

func TestBuild_BurnFeeAboveFullAmount(t *testing.T) {
	req := testRequest()
	schedule := config.FeeSchedule{
		req.SourceMint: {Mint: req.SourceMint, BurnFeeBp: 20_000},
	}
	router := testRouter()
	builder := newTestBuilder(t, testLedger(), router, cache.NewMemoryStore(), schedule, testConfig())

	// A rate above 100% must fail fast; the swap amount would otherwise
	// wrap below zero and an absurd quote would be requested.
	_, err := builder.Build(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInvalidFeeConfig))
	assert.Zero(t, router.quoteAmount)
}

func TestBuild_InvalidFeeAccount(t *testing.T) {
	req := testRequest()
	schedule := config.FeeSchedule{
		req.SourceMint: {Mint: req.SourceMint, TransferFeeBp: 50, FeeAccount: "not-a-valid-base58-address"},
	}
	builder := newTestBuilder(t, testLedger(), testRouter(), cache.NewMemoryStore(), schedule, testConfig())

	// The build must fail rather than report a transfer fee the compiled
	// transaction does not implement.
	_, err := builder.Build(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInvalidFeeConfig))
}

func TestBuild_AmountConsumedByBurnFee(t *testing.T) {
	req := testRequest()
	req.Amount = 1
	schedule := config.FeeSchedule{
		req.SourceMint: {Mint: req.SourceMint, BurnFeeBp: 10_000},
	}
	builder := newTestBuilder(t, testLedger(), testRouter(), cache.NewMemoryStore(), schedule, testConfig())

	_, err := builder.Build(context.Background(), req)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
