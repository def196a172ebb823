package jupiter

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Quote is the routing service's answer for a proposed swap. Everything
// except OutAmount is treated as opaque: Raw preserves the exact response
// body because the swap-instructions call requires it verbatim.
type Quote struct {
	InputMint      string `json:"inputMint"`
	InAmount       string `json:"inAmount"`
	OutputMint     string `json:"outputMint"`
	OutAmount      string `json:"outAmount"`
	SwapMode       string `json:"swapMode"`
	SlippageBps    int    `json:"slippageBps"`
	PriceImpactPct string `json:"priceImpactPct"`

	Raw json.RawMessage `json:"-"`
}

// OutAmountLamports parses the quoted output amount. The routing service
// sends amounts as decimal strings.
func (q *Quote) OutAmountLamports() (uint64, error) {
	amount, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("quote outAmount %q is not a valid amount: %w", q.OutAmount, err)
	}
	return amount, nil
}

// Instruction is an SDK-neutral decoded instruction record: a program
// target, ordered account references, and an opaque payload.
type Instruction struct {
	Program  solana.PublicKey
	Accounts []*solana.AccountMeta
	Data     []byte
}

// ToSolana converts the record into a form the message compiler accepts.
func (ix Instruction) ToSolana() solana.Instruction {
	return solana.NewInstruction(ix.Program, ix.Accounts, ix.Data)
}

// InstructionBundle is the decoded set of instructions implementing a quote.
type InstructionBundle struct {
	ComputeBudget []Instruction
	Setup         []Instruction
	Swap          Instruction
	LookupTables  []solana.PublicKey
}

// computeBudgetSetUnitLimit is the compute-budget program discriminator for
// SetComputeUnitLimit.
const computeBudgetSetUnitLimit = 2

// ComputeUnitLimit returns the compute unit limit the routing service
// requested in its compute budget instructions, if any.
func (b *InstructionBundle) ComputeUnitLimit() (uint32, bool) {
	for _, ix := range b.ComputeBudget {
		if len(ix.Data) == 0 || ix.Data[0] != computeBudgetSetUnitLimit {
			continue
		}
		limit, err := bin.NewBinDecoder(ix.Data[1:]).ReadUint32(binary.LittleEndian)
		if err != nil {
			continue
		}
		return limit, true
	}
	return 0, false
}

// apiInstruction is the wire shape of one instruction: base58 account keys
// plus base64 instruction data.
type apiInstruction struct {
	ProgramID string           `json:"programId"`
	Accounts  []apiAccountMeta `json:"accounts"`
	Data      string           `json:"data"`
}

type apiAccountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// decode converts a wire instruction into the neutral record shape.
// Any malformed field is fatal for the whole bundle.
func (in apiInstruction) decode() (Instruction, error) {
	program, err := solana.PublicKeyFromBase58(in.ProgramID)
	if err != nil {
		return Instruction{}, fmt.Errorf("invalid program id %q: %w", in.ProgramID, err)
	}

	accounts := make([]*solana.AccountMeta, len(in.Accounts))
	for i, acc := range in.Accounts {
		pubkey, err := solana.PublicKeyFromBase58(acc.Pubkey)
		if err != nil {
			return Instruction{}, fmt.Errorf("invalid account pubkey %q: %w", acc.Pubkey, err)
		}
		accounts[i] = &solana.AccountMeta{
			PublicKey:  pubkey,
			IsSigner:   acc.IsSigner,
			IsWritable: acc.IsWritable,
		}
	}

	data, err := base64.StdEncoding.DecodeString(in.Data)
	if err != nil {
		return Instruction{}, fmt.Errorf("invalid instruction data: %w", err)
	}

	return Instruction{Program: program, Accounts: accounts, Data: data}, nil
}
