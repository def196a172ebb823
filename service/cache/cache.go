package cache

import (
	"context"
	"fmt"
)

// Store is a key-value store with last-write-wins semantics.
// It backs two unrelated concerns that share the same shape: permanent
// memoization of network facts (genesis hashes) and the per-(user, mint)
// rate-guard timestamps. There is no compare-and-swap; callers that need
// exclusivity must tolerate the check-then-act race.
type Store interface {
	// Get returns the value for key, or found=false if the key is absent.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	// Set writes the value for key, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte) error
}

// GenesisKey is the cache key for a cluster's genesis hash. Genesis hashes
// never change for a live network, so entries under this key never expire.
func GenesisKey(endpoint string) string {
	return fmt.Sprintf("genesis/%s", endpoint)
}

// RateGuardKey is the cache key holding the timestamp of the last successful
// build for a (user, mint) pair.
func RateGuardKey(user, mint string) string {
	return fmt.Sprintf("swap/%s/%s", user, mint)
}
