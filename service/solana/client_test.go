package solana

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRPCClient implements RPCClient for tests.
type mockRPCClient struct {
	genesisHash    solana.Hash
	genesisErr     error
	accountInfo    *rpc.GetAccountInfoResult
	accountInfoErr error
	multiAccounts  *rpc.GetMultipleAccountsResult
	multiErr       error
	blockhash      solana.Hash
	blockhashErr   error
	fee            *uint64
	feeErr         error
	rent           uint64
	rentErr        error
	simResult      *rpc.SimulateTransactionResponse
	simErr         error
}

func (m *mockRPCClient) GetGenesisHash(ctx context.Context) (solana.Hash, error) {
	return m.genesisHash, m.genesisErr
}

func (m *mockRPCClient) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	return m.accountInfo, m.accountInfoErr
}

func (m *mockRPCClient) GetMultipleAccounts(ctx context.Context, accounts ...solana.PublicKey) (*rpc.GetMultipleAccountsResult, error) {
	return m.multiAccounts, m.multiErr
}

func (m *mockRPCClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if m.blockhashErr != nil {
		return nil, m.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: m.blockhash},
	}, nil
}

func (m *mockRPCClient) GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error) {
	if m.feeErr != nil {
		return nil, m.feeErr
	}
	return &rpc.GetFeeForMessageResult{Value: m.fee}, nil
}

func (m *mockRPCClient) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error) {
	return m.rent, m.rentErr
}

func (m *mockRPCClient) SimulateTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error) {
	return m.simResult, m.simErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestGenesisHash(t *testing.T) {
	hash := solana.MustHashFromBase58("5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d")
	client := NewClient(&mockRPCClient{genesisHash: hash}, "test", nil, testLogger())

	got, err := client.GenesisHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5eykt4UsFv8P8NJdTREpY1vzqKqZKvdpKuc147dw2N9d", got)
}

func TestAccountExists_NotFound(t *testing.T) {
	client := NewClient(&mockRPCClient{accountInfoErr: rpc.ErrNotFound}, "test", nil, testLogger())

	exists, err := client.AccountExists(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAccountExists_Found(t *testing.T) {
	client := NewClient(&mockRPCClient{
		accountInfo: &rpc.GetAccountInfoResult{Value: &rpc.Account{Lamports: 2039280}},
	}, "test", nil, testLogger())

	exists, err := client.AccountExists(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAccountExists_RPCError(t *testing.T) {
	client := NewClient(&mockRPCClient{accountInfoErr: assert.AnError}, "test", nil, testLogger())

	_, err := client.AccountExists(context.Background(), solana.NewWallet().PublicKey())
	require.Error(t, err)
}

// lookupTableAccountData builds a serialized address-lookup-table account with
// the given addresses. Layout: 56-byte metadata header followed by 32-byte
// addresses.
func lookupTableAccountData(addresses ...solana.PublicKey) []byte {
	data := make([]byte, 56, 56+32*len(addresses))
	binary.LittleEndian.PutUint32(data[0:4], 1) // type index: LookupTable
	binary.LittleEndian.PutUint64(data[4:12], ^uint64(0))
	for _, addr := range addresses {
		data = append(data, addr.Bytes()...)
	}
	return data
}

func TestFetchLookupTables_SkipsMissingAndMalformed(t *testing.T) {
	tableA := solana.NewWallet().PublicKey()
	tableB := solana.NewWallet().PublicKey()
	tableC := solana.NewWallet().PublicKey()
	entry := solana.NewWallet().PublicKey()

	client := NewClient(&mockRPCClient{
		multiAccounts: &rpc.GetMultipleAccountsResult{
			Value: []*rpc.Account{
				{Data: rpc.DataBytesOrJSONFromBytes(lookupTableAccountData(entry))},
				nil, // absent on-chain
				{Data: rpc.DataBytesOrJSONFromBytes([]byte{1, 2, 3})}, // undecodable
			},
		},
	}, "test", nil, testLogger())

	tables, err := client.FetchLookupTables(context.Background(), []solana.PublicKey{tableA, tableB, tableC})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Len(t, tables[tableA], 1)
	assert.Equal(t, entry, tables[tableA][0])
}

func TestFetchLookupTables_NilLogger(t *testing.T) {
	table := solana.NewWallet().PublicKey()

	// A client built without a logger must still survive the skip paths.
	client := NewClient(&mockRPCClient{
		multiAccounts: &rpc.GetMultipleAccountsResult{
			Value: []*rpc.Account{nil},
		},
	}, "test", nil, nil)

	tables, err := client.FetchLookupTables(context.Background(), []solana.PublicKey{table})
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestFetchLookupTables_Empty(t *testing.T) {
	client := NewClient(&mockRPCClient{}, "test", nil, testLogger())

	tables, err := client.FetchLookupTables(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestFeeForMessage(t *testing.T) {
	fee := uint64(5000)
	client := NewClient(&mockRPCClient{fee: &fee}, "test", nil, testLogger())

	got, err := client.FeeForMessage(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), got)
}

func TestFeeForMessage_NilValue(t *testing.T) {
	client := NewClient(&mockRPCClient{}, "test", nil, testLogger())

	_, err := client.FeeForMessage(context.Background(), []byte{1, 2, 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fee")
}

func TestSimulate_Rejection(t *testing.T) {
	client := NewClient(&mockRPCClient{
		simResult: &rpc.SimulateTransactionResponse{
			Value: &rpc.SimulateTransactionResult{
				Err:  map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
				Logs: []string{"Program log: insufficient funds"},
			},
		},
	}, "test", nil, testLogger())

	tx := &solana.Transaction{}
	err := client.Simulate(context.Background(), tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulation rejected")
}

func TestSimulate_Success(t *testing.T) {
	client := NewClient(&mockRPCClient{
		simResult: &rpc.SimulateTransactionResponse{
			Value: &rpc.SimulateTransactionResult{},
		},
	}, "test", nil, testLogger())

	require.NoError(t, client.Simulate(context.Background(), &solana.Transaction{}))
}
