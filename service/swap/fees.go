package swap

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/sponsorlab/gasless/service/config"
)

// basisPointDenominator converts basis points to a fraction (1 bp = 0.01%).
const basisPointDenominator = 10_000

// ResolvePolicy looks up the fee policy for a source asset. A missing entry
// is not an error: the build proceeds with zero burn/transfer fee and only
// the mandatory network-fee/rent recovery applies. A misconfigured policy
// fails here, before any network call: a negative fee amount, a basis-point
// rate above 100%, or an unparseable fee account.
func ResolvePolicy(mint string, schedule config.FeeSchedule) (*config.FeePolicy, error) {
	policy, ok := schedule[mint]
	if !ok {
		return nil, nil
	}
	if policy.FeeAmount < 0 {
		return nil, fmt.Errorf("%w: fee amount %d for mint %s is negative", ErrInvalidFeeConfig, policy.FeeAmount, mint)
	}
	if policy.BurnFeeBp > basisPointDenominator {
		return nil, fmt.Errorf("%w: burn fee %d bp for mint %s exceeds %d", ErrInvalidFeeConfig, policy.BurnFeeBp, mint, basisPointDenominator)
	}
	if policy.TransferFeeBp > basisPointDenominator {
		return nil, fmt.Errorf("%w: transfer fee %d bp for mint %s exceeds %d", ErrInvalidFeeConfig, policy.TransferFeeBp, mint, basisPointDenominator)
	}
	if policy.FeeAccount != "" {
		if _, err := solana.PublicKeyFromBase58(policy.FeeAccount); err != nil {
			return nil, fmt.Errorf("%w: fee account %q for mint %s is not a valid address", ErrInvalidFeeConfig, policy.FeeAccount, mint)
		}
	}
	return &policy, nil
}

// basisPointsOf computes floor(amount*bp/10000) without overflowing the
// intermediate product for amounts near the uint64 range.
func basisPointsOf(amount uint64, bp uint16) uint64 {
	quotient := amount / basisPointDenominator
	remainder := amount % basisPointDenominator
	return quotient*uint64(bp) + remainder*uint64(bp)/basisPointDenominator
}

// burnFeeFor computes the portion of the input amount burned before routing.
// Burned tokens never reach the swap, so this reduces the quoted amount.
func burnFeeFor(amount uint64, policy *config.FeePolicy) uint64 {
	if policy == nil {
		return 0
	}
	return basisPointsOf(amount, policy.BurnFeeBp)
}

// transferFeeFor computes the token-side transfer fee forwarded to the
// policy's fee account. It does not reduce the swapped amount.
func transferFeeFor(amount uint64, policy *config.FeePolicy) uint64 {
	if policy == nil || policy.FeeAccount == "" {
		return 0
	}
	return basisPointsOf(amount, policy.TransferFeeBp)
}

// platformFeeFor computes the fee payer's cut of the swap proceeds,
// rounded half up. It compensates the sponsor for the native currency it
// forwards, independent of the token-side fee policy.
func platformFeeFor(quoteOutAmount uint64, bps int) uint64 {
	if bps <= 0 {
		return 0
	}
	quotient := quoteOutAmount / basisPointDenominator
	remainder := quoteOutAmount % basisPointDenominator
	return quotient*uint64(bps) + (remainder*uint64(bps)+basisPointDenominator/2)/basisPointDenominator
}
