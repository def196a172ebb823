package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sponsorlab/gasless/service/metrics"
)

// Client talks to a Jupiter-style swap routing service. The service is
// trusted for pricing but not for liveness: any error response or malformed
// payload is surfaced as-is and fails the build. Retries, if wanted, belong
// to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewClient creates a routing service client. If httpClient is nil a default
// with a 30s timeout is used.
func NewClient(baseURL string, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		metrics:    m,
		logger:     logger,
	}
}

// Quote asks the routing service for the best route swapping amount units of
// inputMint into outputMint.
func (c *Client) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (*Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint.String())
	params.Set("outputMint", outputMint.String())
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create quote request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record("quote", false, start)
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()
	c.record("quote", resp.StatusCode == http.StatusOK, start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing service returned status %d: %s", resp.StatusCode, truncate(body))
	}

	var quote Quote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}
	quote.Raw = json.RawMessage(body)

	c.logger.DebugContext(ctx, "received quote",
		"input_mint", quote.InputMint,
		"in_amount", quote.InAmount,
		"out_amount", quote.OutAmount,
		"price_impact_pct", quote.PriceImpactPct,
	)

	return &quote, nil
}

// swapInstructionsResponse is the wire shape of the swap-instructions call.
type swapInstructionsResponse struct {
	ComputeBudgetInstructions   []apiInstruction `json:"computeBudgetInstructions"`
	SetupInstructions           []apiInstruction `json:"setupInstructions"`
	SwapInstruction             *apiInstruction  `json:"swapInstruction"`
	AddressLookupTableAddresses []string         `json:"addressLookupTableAddresses"`
	Error                       string           `json:"error,omitempty"`
}

// SwapInstructions asks the routing service for the instructions implementing
// a previously obtained quote, executed by user. Wrapping and unwrapping of
// the native account is handled by the swap builder, not the routing service.
func (c *Client) SwapInstructions(ctx context.Context, quote *Quote, user solana.PublicKey) (*InstructionBundle, error) {
	reqBody := map[string]interface{}{
		"quoteResponse":     quote.Raw,
		"userPublicKey":     user.String(),
		"wrapAndUnwrapSol":  false,
		"useSharedAccounts": true,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal swap-instructions request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap-instructions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create swap-instructions request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record("swap_instructions", false, start)
		return nil, fmt.Errorf("swap-instructions request failed: %w", err)
	}
	defer resp.Body.Close()
	c.record("swap_instructions", resp.StatusCode == http.StatusOK, start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read swap-instructions response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("routing service returned status %d: %s", resp.StatusCode, truncate(body))
	}

	var wire swapInstructionsResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("failed to decode swap-instructions response: %w", err)
	}
	if wire.Error != "" {
		return nil, fmt.Errorf("routing service rejected swap: %s", wire.Error)
	}
	if wire.SwapInstruction == nil {
		return nil, fmt.Errorf("routing service returned no swap instruction")
	}

	bundle := &InstructionBundle{}

	for _, in := range wire.ComputeBudgetInstructions {
		ix, err := in.decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode compute-budget instruction: %w", err)
		}
		bundle.ComputeBudget = append(bundle.ComputeBudget, ix)
	}

	for _, in := range wire.SetupInstructions {
		ix, err := in.decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode setup instruction: %w", err)
		}
		bundle.Setup = append(bundle.Setup, ix)
	}

	swapIx, err := wire.SwapInstruction.decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode swap instruction: %w", err)
	}
	bundle.Swap = swapIx

	for _, addr := range wire.AddressLookupTableAddresses {
		table, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid lookup table address %q: %w", addr, err)
		}
		bundle.LookupTables = append(bundle.LookupTables, table)
	}

	c.logger.DebugContext(ctx, "decoded swap instruction bundle",
		"compute_budget_count", len(bundle.ComputeBudget),
		"setup_count", len(bundle.Setup),
		"lookup_tables", len(bundle.LookupTables),
	)

	return bundle, nil
}

// record emits routing call metrics.
func (c *Client) record(operation string, ok bool, start time.Time) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	c.metrics.RecordRoutingCall(operation, status, time.Since(start).Seconds())
}

// truncate bounds an error body so upstream messages stay readable.
func truncate(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
