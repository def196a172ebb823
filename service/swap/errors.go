package swap

import "errors"

// Sentinel error kinds for the build pipeline. Every failure mode a caller
// can act on wraps exactly one of these; check with errors.Is. The HTTP
// layer maps user-facing kinds to 400-class responses.
var (
	// ErrInvalidInput covers malformed addresses and non-positive amounts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrWrongCluster means the resolved genesis hash does not match the
	// expected production network. Environment mismatch, not retryable.
	ErrWrongCluster = errors.New("wrong cluster")

	// ErrInvalidFeeConfig means the configured fee amount for the source
	// asset is negative.
	ErrInvalidFeeConfig = errors.New("invalid fee config")

	// ErrRateLimited means a build for the same (user, mint) pair succeeded
	// within the throttle window.
	ErrRateLimited = errors.New("rate limited")

	// ErrAccountExists means the user's wrapped-native holding account is
	// already allocated on-chain.
	ErrAccountExists = errors.New("account exists")

	// ErrRoutingFailure means the routing service errored or returned an
	// undecodable instruction bundle.
	ErrRoutingFailure = errors.New("routing failure")

	// ErrSimulationFailure means the pre-flight dry run rejected the
	// assembled transaction.
	ErrSimulationFailure = errors.New("simulation failure")

	// ErrSigningFailure means message token derivation failed. Internal;
	// never surfaced verbatim to callers.
	ErrSigningFailure = errors.New("signing failure")
)

// Kind returns a stable label for the error's sentinel kind, or "internal"
// when the error wraps none of them. Used for metrics and logging.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrWrongCluster):
		return "wrong_cluster"
	case errors.Is(err, ErrInvalidFeeConfig):
		return "invalid_fee_config"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAccountExists):
		return "account_exists"
	case errors.Is(err, ErrRoutingFailure):
		return "routing_failure"
	case errors.Is(err, ErrSimulationFailure):
		return "simulation_failure"
	case errors.Is(err, ErrSigningFailure):
		return "signing_failure"
	default:
		return "internal"
	}
}

// UserFacing reports whether the error's message is safe to return to the
// caller. Signing failures and unclassified errors stay internal so they
// cannot leak signing material or implementation detail.
func UserFacing(err error) bool {
	kind := Kind(err)
	return kind != "signing_failure" && kind != "internal"
}
