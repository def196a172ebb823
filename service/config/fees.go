package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// FeePolicy describes the per-asset fee schedule applied when building a
// sponsored swap. FeeAmount is a flat fee in the asset's smallest unit;
// TransferFeeBp and BurnFeeBp are basis points of the swap request amount.
// A mint without a policy pays no burn/transfer fee (only the mandatory
// network-fee/rent recovery applies).
type FeePolicy struct {
	Mint          string `json:"mint"`
	FeeAmount     int64  `json:"fee_amount"`
	Decimals      uint8  `json:"decimals"`
	FeeAccount    string `json:"fee_account"`
	TransferFeeBp uint16 `json:"transfer_fee_bp"`
	BurnFeeBp     uint16 `json:"burn_fee_bp"`
}

// FeeSchedule maps a source-asset mint address to its fee policy.
type FeeSchedule map[string]FeePolicy

// LoadFeeSchedule reads a JSON array of fee policies from path and indexes
// them by mint. An empty path yields an empty schedule. Duplicate mints are
// a configuration error. Negative fee amounts are deliberately NOT rejected
// here: the resolver fails them per-request so a single bad entry does not
// take down the whole service at startup.
func LoadFeeSchedule(path string) (FeeSchedule, error) {
	if path == "" {
		return FeeSchedule{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fee schedule %q: %w", path, err)
	}

	var policies []FeePolicy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, fmt.Errorf("failed to parse fee schedule %q: %w", path, err)
	}

	schedule := make(FeeSchedule, len(policies))
	for _, policy := range policies {
		if policy.Mint == "" {
			return nil, fmt.Errorf("fee schedule %q: entry with empty mint", path)
		}
		if _, exists := schedule[policy.Mint]; exists {
			return nil, fmt.Errorf("fee schedule %q: duplicate mint %s", path, policy.Mint)
		}
		schedule[policy.Mint] = policy
	}

	return schedule, nil
}
