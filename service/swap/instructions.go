package swap

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/sponsorlab/gasless/service/jupiter"
)

// WrappedSolMint is the mint of the wrapped native token. The swap's output
// lands in a temporary wrapped-native account owned by the user.
var WrappedSolMint = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// tokenAccountSize is the serialized size of an SPL token account; its
// rent-exempt balance is the rent float the fee payer sponsors.
const tokenAccountSize = 165

// SPL Token program instruction discriminators.
const (
	tokenInstructionTransferChecked = 12
	tokenInstructionCloseAccount    = 9
	tokenInstructionBurn            = 8
)

// createAccountIdempotentInstruction builds an associated-token-program
// CreateIdempotent: allocate owner's associated account for mint, paid by
// payer, no-op when it already exists. The builder still rejects an existing
// wrapped-native account up front; idempotency here only guards against the
// account appearing between that check and execution.
func createAccountIdempotentInstruction(payer, account, owner, mint solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(payer, true, true),
			solana.NewAccountMeta(account, true, false),
			solana.NewAccountMeta(owner, false, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
		},
		[]byte{1}, // CreateIdempotent
	)
}

// closeAccountInstruction releases the token account's lamports (the rent
// float) to destination and deallocates it.
func closeAccountInstruction(account, destination, owner solana.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(account, true, false),
			solana.NewAccountMeta(destination, true, false),
			solana.NewAccountMeta(owner, false, true),
		},
		[]byte{tokenInstructionCloseAccount},
	)
}

// systemTransferInstruction moves lamports from one system account to another.
func systemTransferInstruction(from, to solana.PublicKey, lamports uint64) solana.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2) // Transfer
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return solana.NewInstruction(
		solana.SystemProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(from, true, true),
			solana.NewAccountMeta(to, true, false),
		},
		data,
	)
}

// burnInstruction debits amount units of mint from the token account.
func burnInstruction(account, mint, owner solana.PublicKey, amount uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = tokenInstructionBurn
	binary.LittleEndian.PutUint64(data[1:9], amount)

	return solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(account, true, false),
			solana.NewAccountMeta(mint, true, false),
			solana.NewAccountMeta(owner, false, true),
		},
		data,
	)
}

// transferCheckedInstruction moves amount units of mint between token
// accounts, with the mint and decimals checked on-chain.
func transferCheckedInstruction(source, mint, destination, owner solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	data := make([]byte, 10)
	data[0] = tokenInstructionTransferChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals

	return solana.NewInstruction(
		solana.TokenProgramID,
		solana.AccountMetaSlice{
			solana.NewAccountMeta(source, true, false),
			solana.NewAccountMeta(mint, false, false),
			solana.NewAccountMeta(destination, true, false),
			solana.NewAccountMeta(owner, false, true),
		},
		data,
	)
}

// assembleParams carries everything the assembler needs to lay out one pass
// of the fixed-order instruction sequence.
type assembleParams struct {
	user              solana.PublicKey
	feePayer          solana.PublicKey
	sourceMint        solana.PublicKey
	wrappedAccount    solana.PublicKey // user's wrapped-native holding account
	userSourceAccount solana.PublicKey // user's source-asset token account
	bundle            *jupiter.InstructionBundle
	feeAccount        solana.PublicKey // destination of the transfer fee, zero when none applies
	feeDecimals       uint8
	cleanupLamports   uint64 // rent float + platform fee (+ measured network fee on pass two)
	burnFee           uint64
	transferFee       uint64
}

// assembleInstructions produces the protocol's fixed instruction order:
// compute budget, account setup, swap, then cleanup/fee extraction. The
// order and count must be identical across both compilation passes; only
// cleanupLamports may differ, because a transfer amount never changes the
// serialized message size.
func assembleInstructions(p assembleParams) []solana.Instruction {
	instructions := make([]solana.Instruction, 0,
		len(p.bundle.ComputeBudget)+len(p.bundle.Setup)+6)

	for _, ix := range p.bundle.ComputeBudget {
		instructions = append(instructions, ix.ToSolana())
	}

	instructions = append(instructions,
		createAccountIdempotentInstruction(p.feePayer, p.wrappedAccount, p.user, WrappedSolMint))

	for _, ix := range p.bundle.Setup {
		instructions = append(instructions, ix.ToSolana())
	}

	instructions = append(instructions, p.bundle.Swap.ToSolana())

	// Cleanup: unwrap to the user, then reimburse the sponsor.
	instructions = append(instructions,
		closeAccountInstruction(p.wrappedAccount, p.user, p.user),
		systemTransferInstruction(p.user, p.feePayer, p.cleanupLamports),
	)

	if p.burnFee > 0 {
		instructions = append(instructions,
			burnInstruction(p.userSourceAccount, p.sourceMint, p.user, p.burnFee))
	}

	if p.transferFee > 0 {
		instructions = append(instructions,
			transferCheckedInstruction(p.userSourceAccount, p.sourceMint, p.feeAccount, p.user, p.transferFee, p.feeDecimals))
	}

	return instructions
}
