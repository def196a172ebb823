package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// BuildSwapRequest asks the service to build a sponsored swap transaction.
type BuildSwapRequest struct {
	// UserAddress is the base58 address of the wallet holding the source asset.
	UserAddress string `json:"user_address"`
	// SourceMint is the base58 mint of the asset being swapped to native.
	SourceMint string `json:"source_mint"`
	// Amount is the quantity to swap, in base units of the source asset.
	Amount int64 `json:"amount"`
	// ThrottleWindowMs optionally overrides the server's minimum interval
	// between builds for the same (user, mint) pair. Zero keeps the server
	// default; negative disables the guard for this request.
	ThrottleWindowMs int64 `json:"throttle_window_ms,omitempty"`
}

// FeeBreakdown reports every deduction the built transaction applies.
type FeeBreakdown struct {
	NetworkFee  uint64 `json:"network_fee"`
	RentFloat   uint64 `json:"rent_float"`
	PlatformFee uint64 `json:"platform_fee"`
	BurnFee     uint64 `json:"burn_fee"`
	TransferFee uint64 `json:"transfer_fee"`
}

// QuoteSummary is the routing quote attached to a build response.
type QuoteSummary struct {
	InputMint      string `json:"input_mint"`
	InAmount       string `json:"in_amount"`
	OutputMint     string `json:"output_mint"`
	OutAmount      string `json:"out_amount"`
	PriceImpactPct string `json:"price_impact_pct,omitempty"`
}

// BuildSwapResponse is the service's answer to a build request. Transaction
// is the base64-encoded unsigned transaction; MessageToken is the fee
// payer's signature over the compiled message, verifiable against the
// fee-payer public key.
type BuildSwapResponse struct {
	Status       string       `json:"status"`
	BuildID      string       `json:"build_id"`
	Transaction  string       `json:"transaction"`
	MessageToken string       `json:"message_token"`
	Quote        QuoteSummary `json:"quote"`
	Fees         FeeBreakdown `json:"fees"`
}

// Client is the HTTP client for the gasless swap-build service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new swap-build service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// BuildSwap asks the service to build a sponsored swap transaction.
func (c *Client) BuildSwap(ctx context.Context, req BuildSwapRequest) (*BuildSwapResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/swap", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var buildResp BuildSwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&buildResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	c.logger.Debug("swap transaction built",
		"user", req.UserAddress,
		"source_mint", req.SourceMint,
		"out_amount", buildResp.Quote.OutAmount,
	)
	return &buildResp, nil
}

// FeePayer returns the service's fee-payer public key as base58.
func (c *Client) FeePayer(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/fee-payer", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.parseErrorResponse(resp)
	}

	var body struct {
		FeePayer string `json:"fee_payer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return body.FeePayer, nil
}

// Health checks whether the service is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// parseErrorResponse extracts the {status:"error", message} body from a
// failed API response.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Message)
}
