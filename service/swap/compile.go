package swap

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// compileMessage turns an instruction sequence into a versioned transaction
// paid by feePayer, compressing account references through any resolved
// lookup tables. The returned message bytes are the canonical serialization
// used for fee estimation and the message token.
func compileMessage(
	instructions []solana.Instruction,
	blockhash solana.Hash,
	feePayer solana.PublicKey,
	tables map[solana.PublicKey]solana.PublicKeySlice,
) (*solana.Transaction, []byte, error) {
	opts := []solana.TransactionOption{
		solana.TransactionPayer(feePayer),
	}
	if len(tables) > 0 {
		opts = append(opts, solana.TransactionAddressTables(tables))
	}

	tx, err := solana.NewTransaction(instructions, blockhash, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile message: %w", err)
	}

	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	return tx, messageBytes, nil
}
