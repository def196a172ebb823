package swap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sponsorlab/gasless/service/cache"
	"github.com/sponsorlab/gasless/service/config"
	"github.com/sponsorlab/gasless/service/jupiter"
	"github.com/sponsorlab/gasless/service/metrics"
)

// Ledger is the chain-facing surface the builder needs. The concrete
// implementation is the solana.Client facade; tests substitute a mock.
type Ledger interface {
	Endpoint() string
	GenesisHash(ctx context.Context) (string, error)
	AccountExists(ctx context.Context, account solana.PublicKey) (bool, error)
	FetchLookupTables(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	FeeForMessage(ctx context.Context, messageBytes []byte) (uint64, error)
	RentExemptBalance(ctx context.Context, dataSize uint64) (uint64, error)
	Simulate(ctx context.Context, tx *solana.Transaction) error
}

// Router is the routing-service surface the builder needs, implemented by
// the jupiter.Client.
type Router interface {
	Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps int) (*jupiter.Quote, error)
	SwapInstructions(ctx context.Context, quote *jupiter.Quote, user solana.PublicKey) (*jupiter.InstructionBundle, error)
}

// BuildRequest is one sponsored swap-build request.
type BuildRequest struct {
	// UserAddress is the base58 address of the wallet that holds the source
	// asset and will sign as the transaction's second signer.
	UserAddress string

	// SourceMint is the base58 mint of the asset being swapped to native.
	SourceMint string

	// Amount is the quantity of the source asset, in base units, the user
	// wants to swap. Fees configured for the mint come out of this amount.
	Amount int64

	// ThrottleWindowMs overrides the configured minimum interval between
	// successful builds for the same (user, mint) pair. Zero means use the
	// configured default; negative disables the guard for this request.
	ThrottleWindowMs int64
}

// BuildResult is everything a successful build returns: the unsigned
// transaction, the exact message bytes the token attests, and the fee
// breakdown applied.
type BuildResult struct {
	Transaction       *solana.Transaction
	TransactionBase64 string
	MessageBytes      []byte
	MessageToken      string
	Quote             *jupiter.Quote

	NetworkFee  uint64
	RentFloat   uint64
	PlatformFee uint64
	BurnFee     uint64
	TransferFee uint64
}

// Builder assembles fee-payer-sponsored swap transactions. It owns no
// network connections itself; everything flows through the injected ledger,
// router, and cache.
type Builder struct {
	ledger   Ledger
	router   Router
	store    cache.Store
	schedule config.FeeSchedule
	feePayer solana.PrivateKey
	cfg      *config.Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewBuilder creates a swap builder. The fee payer key both pays for and
// attests every transaction the builder produces.
func NewBuilder(
	ledger Ledger,
	router Router,
	store cache.Store,
	schedule config.FeeSchedule,
	feePayer solana.PrivateKey,
	cfg *config.Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Builder {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Builder{
		ledger:   ledger,
		router:   router,
		store:    store,
		schedule: schedule,
		feePayer: feePayer,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// FeePayer returns the public key that sponsors built transactions.
func (b *Builder) FeePayer() solana.PublicKey {
	return b.feePayer.PublicKey()
}

// Build runs the full swap-build pipeline and records build metrics.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	start := time.Now()
	result, err := b.build(ctx, req)
	if b.metrics != nil {
		if err != nil {
			b.metrics.RecordBuild("error", Kind(err), time.Since(start).Seconds())
		} else {
			b.metrics.RecordBuild("success", "", time.Since(start).Seconds())
		}
	}
	return result, err
}

func (b *Builder) build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	user, err := solana.PublicKeyFromBase58(req.UserAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: user address %q is not a valid address", ErrInvalidInput, req.UserAddress)
	}
	sourceMint, err := solana.PublicKeyFromBase58(req.SourceMint)
	if err != nil {
		return nil, fmt.Errorf("%w: source mint %q is not a valid address", ErrInvalidInput, req.SourceMint)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidInput, req.Amount)
	}
	amount := uint64(req.Amount)

	if err := b.checkCluster(ctx); err != nil {
		return nil, err
	}
	window := b.cfg.SameMintTimeout
	if req.ThrottleWindowMs != 0 {
		window = time.Duration(req.ThrottleWindowMs) * time.Millisecond
	}
	if err := b.checkRateGuard(ctx, req.UserAddress, req.SourceMint, window); err != nil {
		return nil, err
	}

	policy, err := ResolvePolicy(req.SourceMint, b.schedule)
	if err != nil {
		return nil, err
	}

	wrappedAccount, _, err := solana.FindAssociatedTokenAddress(user, WrappedSolMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive wrapped-native account: %w", err)
	}
	exists, err := b.ledger.AccountExists(ctx, wrappedAccount)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: wrapped-native account %s already exists for user %s", ErrAccountExists, wrappedAccount, user)
	}

	userSourceAccount, _, err := solana.FindAssociatedTokenAddress(user, sourceMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive source token account: %w", err)
	}

	// Burned tokens come out before routing; the quote sees the reduced
	// amount. The transfer fee rides alongside and never changes the quote.
	burnFee := burnFeeFor(amount, policy)
	transferFee := transferFeeFor(amount, policy)
	if burnFee >= amount {
		return nil, fmt.Errorf("%w: amount %d is fully consumed by the burn fee", ErrInvalidInput, req.Amount)
	}
	swapAmount := amount - burnFee

	// ResolvePolicy already validated the address; a transfer fee without a
	// destination cannot reach this point.
	var feeAccount solana.PublicKey
	var feeDecimals uint8
	if transferFee > 0 {
		feeAccount, err = solana.PublicKeyFromBase58(policy.FeeAccount)
		if err != nil {
			return nil, fmt.Errorf("%w: fee account %q is not a valid address", ErrInvalidFeeConfig, policy.FeeAccount)
		}
		feeDecimals = policy.Decimals
	}

	quote, err := b.router.Quote(ctx, sourceMint, WrappedSolMint, swapAmount, b.cfg.SlippageBps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingFailure, err)
	}
	outAmount, err := quote.OutAmountLamports()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingFailure, err)
	}
	platformFee := platformFeeFor(outAmount, b.cfg.PlatformFeeBps)

	bundle, err := b.router.SwapInstructions(ctx, quote, user)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoutingFailure, err)
	}
	if limit, ok := bundle.ComputeUnitLimit(); ok {
		b.logger.DebugContext(ctx, "routing bundle requests compute unit limit", "limit", limit)
	}

	rentFloat, err := b.ledger.RentExemptBalance(ctx, tokenAccountSize)
	if err != nil {
		return nil, err
	}
	tables, err := b.ledger.FetchLookupTables(ctx, bundle.LookupTables)
	if err != nil {
		return nil, err
	}
	blockhash, err := b.ledger.LatestBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	params := assembleParams{
		user:              user,
		feePayer:          b.feePayer.PublicKey(),
		sourceMint:        sourceMint,
		wrappedAccount:    wrappedAccount,
		userSourceAccount: userSourceAccount,
		bundle:            bundle,
		feeAccount:        feeAccount,
		feeDecimals:       feeDecimals,
		cleanupLamports:   rentFloat + platformFee,
		burnFee:           burnFee,
		transferFee:       transferFee,
	}

	// First pass: compile with a placeholder reimbursement to measure the
	// network fee, then recompile with the fee folded in. The instruction
	// shape is identical across passes so the measurement stays valid.
	_, draftBytes, err := compileMessage(assembleInstructions(params), blockhash, b.feePayer.PublicKey(), tables)
	if err != nil {
		return nil, err
	}
	networkFee, err := b.ledger.FeeForMessage(ctx, draftBytes)
	if err != nil {
		return nil, err
	}

	params.cleanupLamports = rentFloat + platformFee + networkFee
	tx, messageBytes, err := compileMessage(assembleInstructions(params), blockhash, b.feePayer.PublicKey(), tables)
	if err != nil {
		return nil, err
	}

	if err := b.ledger.Simulate(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSimulationFailure, err)
	}

	messageToken, err := SignMessageToken(b.feePayer, messageBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}

	txBase64, err := tx.ToBase64()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	b.markRateGuard(ctx, req.UserAddress, req.SourceMint)

	b.logger.InfoContext(ctx, "built sponsored swap transaction",
		"user", req.UserAddress,
		"source_mint", req.SourceMint,
		"amount", req.Amount,
		"swap_amount", swapAmount,
		"out_amount", outAmount,
		"network_fee", networkFee,
		"rent_float", rentFloat,
		"platform_fee", platformFee,
		"burn_fee", burnFee,
		"transfer_fee", transferFee,
		"lookup_tables", len(tables),
	)

	return &BuildResult{
		Transaction:       tx,
		TransactionBase64: txBase64,
		MessageBytes:      messageBytes,
		MessageToken:      messageToken,
		Quote:             quote,
		NetworkFee:        networkFee,
		RentFloat:         rentFloat,
		PlatformFee:       platformFee,
		BurnFee:           burnFee,
		TransferFee:       transferFee,
	}, nil
}

// checkCluster verifies the RPC endpoint serves the expected network. The
// genesis hash never changes for a live cluster, so a confirmed value is
// memoized in the cache forever.
func (b *Builder) checkCluster(ctx context.Context) error {
	key := cache.GenesisKey(b.ledger.Endpoint())

	cached, ok, err := b.store.Get(ctx, key)
	if err != nil {
		b.logger.WarnContext(ctx, "genesis cache read failed", "error", err)
	}

	genesis := string(cached)
	if !ok || genesis == "" {
		genesis, err = b.ledger.GenesisHash(ctx)
		if err != nil {
			return err
		}
		if err := b.store.Set(ctx, key, []byte(genesis)); err != nil {
			b.logger.WarnContext(ctx, "genesis cache write failed", "error", err)
		}
	}

	if genesis != b.cfg.ExpectedGenesisHash {
		return fmt.Errorf("%w: genesis hash %s does not match expected %s", ErrWrongCluster, genesis, b.cfg.ExpectedGenesisHash)
	}
	return nil
}

// checkRateGuard rejects a build when the same (user, mint) pair completed
// one within the throttle window. Check and mark are separate cache
// operations, so two racing requests can both pass; the guard bounds
// steady-state request rate, it is not a mutual-exclusion lock.
func (b *Builder) checkRateGuard(ctx context.Context, user, mint string, window time.Duration) error {
	if window <= 0 {
		return nil
	}

	value, ok, err := b.store.Get(ctx, cache.RateGuardKey(user, mint))
	if err != nil {
		b.logger.WarnContext(ctx, "rate guard read failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	lastMilli, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return nil
	}
	elapsed := time.Since(time.UnixMilli(lastMilli))
	if elapsed < window {
		return fmt.Errorf("%w: last build for this wallet and mint was %s ago, minimum interval is %s",
			ErrRateLimited, elapsed.Round(time.Millisecond), window)
	}
	return nil
}

// markRateGuard records a completed build. Only successful builds arm the
// guard; failures may be retried immediately.
func (b *Builder) markRateGuard(ctx context.Context, user, mint string) {
	value := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := b.store.Set(ctx, cache.RateGuardKey(user, mint), []byte(value)); err != nil {
		b.logger.WarnContext(ctx, "rate guard write failed", "error", err)
	}
}
