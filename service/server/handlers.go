package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/sponsorlab/gasless/service/nats"
	"github.com/sponsorlab/gasless/service/swap"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a build request
	maxAddressLength   = 100     // Solana addresses are 44 chars, give buffer
)

var (
	// Valid Solana address characters: base58 (no 0, O, I, l)
	validAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
)

// buildSwapRequest is the request body for POST /api/v1/swap.
// ThrottleWindowMs optionally overrides the configured minimum interval
// between builds for the same (user, mint) pair.
type buildSwapRequest struct {
	UserAddress      string `json:"user_address"`
	SourceMint       string `json:"source_mint"`
	Amount           int64  `json:"amount"`
	ThrottleWindowMs int64  `json:"throttle_window_ms,omitempty"`
}

// feeBreakdown reports every deduction the built transaction applies.
// Network, rent, and platform values are lamports; burn and transfer values
// are base units of the source asset.
type feeBreakdown struct {
	NetworkFee  uint64 `json:"network_fee"`
	RentFloat   uint64 `json:"rent_float"`
	PlatformFee uint64 `json:"platform_fee"`
	BurnFee     uint64 `json:"burn_fee"`
	TransferFee uint64 `json:"transfer_fee"`
}

// quoteSummary is the subset of the routing quote callers need to display.
type quoteSummary struct {
	InputMint      string `json:"input_mint"`
	InAmount       string `json:"in_amount"`
	OutputMint     string `json:"output_mint"`
	OutAmount      string `json:"out_amount"`
	PriceImpactPct string `json:"price_impact_pct,omitempty"`
}

// buildSwapResponse is the success body for POST /api/v1/swap. Status is
// always "ok"; failures use the {status:"error", message} shape instead.
type buildSwapResponse struct {
	Status       string       `json:"status"`
	BuildID      string       `json:"build_id"`
	Transaction  string       `json:"transaction"`
	MessageToken string       `json:"message_token"`
	Quote        quoteSummary `json:"quote"`
	Fees         feeBreakdown `json:"fees"`
}

// handleBuildSwap returns a handler that builds a sponsored swap transaction.
// POST /api/v1/swap
func handleBuildSwap(builder *swap.Builder, publisher nats.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req buildSwapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.UserAddress); err != nil {
			logger.Debug("invalid user address", "address", req.UserAddress, "error", err)
			writeError(w, fmt.Sprintf("user_address: %v", err), http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.SourceMint); err != nil {
			logger.Debug("invalid source mint", "mint", req.SourceMint, "error", err)
			writeError(w, fmt.Sprintf("source_mint: %v", err), http.StatusBadRequest)
			return
		}

		// Correlates logs, the response, and the published event.
		buildID := uuid.NewString()

		result, err := builder.Build(r.Context(), swap.BuildRequest{
			UserAddress:      req.UserAddress,
			SourceMint:       req.SourceMint,
			Amount:           req.Amount,
			ThrottleWindowMs: req.ThrottleWindowMs,
		})
		if err != nil {
			status := statusForError(err)
			if status >= http.StatusInternalServerError {
				logger.Error("swap build failed",
					"build_id", buildID,
					"user", req.UserAddress,
					"source_mint", req.SourceMint,
					"kind", swap.Kind(err),
					"error", err,
				)
				writeError(w, "internal server error", status)
				return
			}
			logger.Info("swap build rejected",
				"build_id", buildID,
				"user", req.UserAddress,
				"source_mint", req.SourceMint,
				"kind", swap.Kind(err),
				"error", err,
			)
			writeError(w, err.Error(), status)
			return
		}

		publishBuildEvent(r, publisher, logger, buildID, req, result)

		writeJSON(w, buildSwapResponse{
			Status:       "ok",
			BuildID:      buildID,
			Transaction:  result.TransactionBase64,
			MessageToken: result.MessageToken,
			Quote: quoteSummary{
				InputMint:      result.Quote.InputMint,
				InAmount:       result.Quote.InAmount,
				OutputMint:     result.Quote.OutputMint,
				OutAmount:      result.Quote.OutAmount,
				PriceImpactPct: result.Quote.PriceImpactPct,
			},
			Fees: feeBreakdown{
				NetworkFee:  result.NetworkFee,
				RentFloat:   result.RentFloat,
				PlatformFee: result.PlatformFee,
				BurnFee:     result.BurnFee,
				TransferFee: result.TransferFee,
			},
		}, http.StatusOK)
	})
}

// handleGetFeePayer returns the fee payer's public key. Callers use it to
// verify message tokens without trusting the build response.
// GET /api/v1/fee-payer
func handleGetFeePayer(builder *swap.Builder) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"status":    "ok",
			"fee_payer": builder.FeePayer().String(),
		}, http.StatusOK)
	})
}

// publishBuildEvent emits a build event to NATS. Publish failures are logged
// and swallowed; the build already succeeded from the caller's perspective.
func publishBuildEvent(r *http.Request, publisher nats.Publisher, logger *slog.Logger, buildID string, req buildSwapRequest, result *swap.BuildResult) {
	if publisher == nil {
		return
	}
	event := &nats.SwapBuildEvent{
		BuildID:      buildID,
		UserAddress:  req.UserAddress,
		SourceMint:   req.SourceMint,
		Amount:       req.Amount,
		OutAmount:    result.Quote.OutAmount,
		NetworkFee:   result.NetworkFee,
		RentFloat:    result.RentFloat,
		PlatformFee:  result.PlatformFee,
		BurnFee:      result.BurnFee,
		TransferFee:  result.TransferFee,
		MessageToken: result.MessageToken,
		BuiltAt:      time.Now().UTC(),
	}
	if err := publisher.PublishSwapBuild(r.Context(), event); err != nil {
		logger.Error("failed to publish build event",
			"build_id", buildID,
			"user", req.UserAddress,
			"error", err,
		)
	}
}

// statusForError maps a build error to an HTTP status code. Anything the
// error taxonomy does not classify as user-facing becomes a 500 with a
// generic message.
func statusForError(err error) int {
	if !swap.UserFacing(err) {
		return http.StatusInternalServerError
	}
	switch swap.Kind(err) {
	case "invalid_input", "invalid_fee_config", "wrong_cluster":
		return http.StatusBadRequest
	case "rate_limited":
		return http.StatusTooManyRequests
	case "account_exists":
		return http.StatusConflict
	case "routing_failure", "simulation_failure":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes the {status:"error", message} failure body.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "error",
		"message": message,
	})
}

// validateAddress validates a wallet or mint address for format and length.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}
	if len(address) > maxAddressLength {
		return fmt.Errorf("address too long: maximum length is %d characters", maxAddressLength)
	}
	if !validAddressRegex.MatchString(address) {
		return fmt.Errorf("address contains invalid characters")
	}
	return nil
}
