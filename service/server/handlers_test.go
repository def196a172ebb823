package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sponsorlab/gasless/service/cache"
	"github.com/sponsorlab/gasless/service/config"
	"github.com/sponsorlab/gasless/service/jupiter"
	"github.com/sponsorlab/gasless/service/nats"
	"github.com/sponsorlab/gasless/service/swap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGenesis = "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d"

type mockLedger struct {
	genesis       string
	accountExists bool
	simulateErr   error
}

func (m *mockLedger) Endpoint() string { return "rpc.test" }

func (m *mockLedger) GenesisHash(ctx context.Context) (string, error) {
	return m.genesis, nil
}

func (m *mockLedger) AccountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	return m.accountExists, nil
}

func (m *mockLedger) FetchLookupTables(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error) {
	return map[solana.PublicKey]solana.PublicKeySlice{}, nil
}

func (m *mockLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return solana.MustHashFromBase58("GfVcyD4kkTrj4bKc7WA9sZCin9JDbdT4Zkd3EittNR1W"), nil
}

func (m *mockLedger) FeeForMessage(ctx context.Context, messageBytes []byte) (uint64, error) {
	return 5000, nil
}

func (m *mockLedger) RentExemptBalance(ctx context.Context, dataSize uint64) (uint64, error) {
	return 2_039_280, nil
}

func (m *mockLedger) Simulate(ctx context.Context, tx *solana.Transaction) error {
	return m.simulateErr
}

type mockRouter struct {
	quoteErr error
}

func (m *mockRouter) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (*jupiter.Quote, error) {
	if m.quoteErr != nil {
		return nil, m.quoteErr
	}
	return &jupiter.Quote{
		InputMint:  inputMint.String(),
		InAmount:   fmt.Sprintf("%d", amount),
		OutputMint: outputMint.String(),
		OutAmount:  "100000",
		Raw:        []byte(`{"outAmount":"100000"}`),
	}, nil
}

func (m *mockRouter) SwapInstructions(ctx context.Context, quote *jupiter.Quote, user solana.PublicKey) (*jupiter.InstructionBundle, error) {
	return &jupiter.InstructionBundle{
		Swap: jupiter.Instruction{
			Program: solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"),
			Data:    []byte{0xde, 0xad},
		},
	}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestBuilder(t *testing.T, ledger swap.Ledger, router swap.Router) *swap.Builder {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	cfg := &config.Config{
		ExpectedGenesisHash: testGenesis,
		SlippageBps:         50,
		PlatformFeeBps:      25,
		SameMintTimeout:     3 * time.Second,
	}
	return swap.NewBuilder(ledger, router, cache.NewMemoryStore(), nil, key, cfg, nil, testLogger())
}

func buildRequestBody(t *testing.T) string {
	t.Helper()
	body, err := json.Marshal(buildSwapRequest{
		UserAddress: solana.NewWallet().PublicKey().String(),
		SourceMint:  solana.NewWallet().PublicKey().String(),
		Amount:      10_000,
	})
	require.NoError(t, err)
	return string(body)
}

func TestHandleBuildSwap_Success(t *testing.T) {
	builder := newTestBuilder(t, &mockLedger{genesis: testGenesis}, &mockRouter{})
	publisher := nats.NewMockPublisher()
	handler := handleBuildSwap(builder, publisher, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(buildRequestBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp buildSwapResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.BuildID)
	assert.NotEmpty(t, resp.Transaction)
	assert.NotEmpty(t, resp.MessageToken)
	assert.Equal(t, "100000", resp.Quote.OutAmount)
	assert.Equal(t, uint64(5000), resp.Fees.NetworkFee)
	assert.Equal(t, uint64(2_039_280), resp.Fees.RentFloat)
	assert.Equal(t, uint64(250), resp.Fees.PlatformFee)

	events := publisher.GetPublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, resp.MessageToken, events[0].MessageToken)
}

func TestHandleBuildSwap_InvalidBody(t *testing.T) {
	builder := newTestBuilder(t, &mockLedger{genesis: testGenesis}, &mockRouter{})
	handler := handleBuildSwap(builder, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(`{"user_address":`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestHandleBuildSwap_InvalidAddress(t *testing.T) {
	builder := newTestBuilder(t, &mockLedger{genesis: testGenesis}, &mockRouter{})
	handler := handleBuildSwap(builder, nil, testLogger())

	body := `{"user_address":"not base58!!","source_mint":"` + solana.NewWallet().PublicKey().String() + `","amount":100}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "user_address")
}

func TestHandleBuildSwap_NonPositiveAmount(t *testing.T) {
	builder := newTestBuilder(t, &mockLedger{genesis: testGenesis}, &mockRouter{})
	handler := handleBuildSwap(builder, nil, testLogger())

	body := `{"user_address":"` + solana.NewWallet().PublicKey().String() +
		`","source_mint":"` + solana.NewWallet().PublicKey().String() + `","amount":0}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBuildSwap_AccountExists(t *testing.T) {
	builder := newTestBuilder(t, &mockLedger{genesis: testGenesis, accountExists: true}, &mockRouter{})
	handler := handleBuildSwap(builder, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(buildRequestBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)

	// Failures use the {status:"error", message} body shape.
	var errBody map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	assert.Equal(t, "error", errBody["status"])
	assert.Contains(t, errBody["message"], "already exists")
}

func TestHandleBuildSwap_RoutingFailure(t *testing.T) {
	builder := newTestBuilder(t, &mockLedger{genesis: testGenesis}, &mockRouter{quoteErr: fmt.Errorf("no route found")})
	handler := handleBuildSwap(builder, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(buildRequestBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleBuildSwap_SimulationFailure(t *testing.T) {
	ledger := &mockLedger{genesis: testGenesis, simulateErr: fmt.Errorf("custom program error: 0x1771")}
	builder := newTestBuilder(t, ledger, &mockRouter{})
	handler := handleBuildSwap(builder, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(buildRequestBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "simulation")
}

func TestHandleBuildSwap_WrongCluster(t *testing.T) {
	ledger := &mockLedger{genesis: "EtWTRABZaYq6iMfeYKouRu166VU2xqa1wcaWoxPkrZBG"}
	builder := newTestBuilder(t, ledger, &mockRouter{})
	handler := handleBuildSwap(builder, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(buildRequestBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBuildSwap_RateLimited(t *testing.T) {
	builder := newTestBuilder(t, &mockLedger{genesis: testGenesis}, &mockRouter{})
	handler := handleBuildSwap(builder, nil, testLogger())

	body := buildRequestBody(t)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(body))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandleBuildSwap_PublishFailureDoesNotFailRequest(t *testing.T) {
	builder := newTestBuilder(t, &mockLedger{genesis: testGenesis}, &mockRouter{})
	publisher := nats.NewMockPublisher()
	publisher.SetPublishError(fmt.Errorf("nats unavailable"))
	handler := handleBuildSwap(builder, publisher, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/swap", strings.NewReader(buildRequestBody(t)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetFeePayer(t *testing.T) {
	builder := newTestBuilder(t, &mockLedger{genesis: testGenesis}, &mockRouter{})
	handler := handleGetFeePayer(builder)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fee-payer", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, builder.FeePayer().String(), resp["fee_payer"])
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, validateAddress(solana.NewWallet().PublicKey().String()))
	assert.Error(t, validateAddress(""))
	assert.Error(t, validateAddress(strings.Repeat("A", maxAddressLength+1)))
	assert.Error(t, validateAddress("contains!invalid@chars"))
	assert.Error(t, validateAddress("0OIl")) // excluded base58 characters
}
