package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/blockchain_listener"
	"github.com/ferreirogomes/cotas/codec"
	"github.com/ferreirogomes/cotas/services"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockSolanaRPC é uma implementação mock do cliente RPC
type MockSolanaRPC struct {
	mock.Mock
}

func (m *MockSolanaRPC) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	args := m.Called(ctx, commitment)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockSolanaRPC) GetGenesisHash(ctx context.Context) (solana.Hash, error) {
	args := m.Called(ctx)
	return args.Get(0).(solana.Hash), args.Error(1)
}

func (m *MockSolanaRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	args := m.Called(ctx, commitment)
	return args.Get(0).(*rpc.GetLatestBlockhashResult), args.Error(1)
}

func (m *MockSolanaRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	args := m.Called(ctx, tx, opts)
	return args.Get(0).(solana.Signature), args.Error(1)
}

// MockConfirmer é uma implementação mock do listener
type MockConfirmer struct {
	mock.Mock
}

func (m *MockConfirmer) WaitFinalized(ctx context.Context, sig solana.Signature) (blockchain_listener.Finalized, error) {
	args := m.Called(ctx, sig)
	return args.Get(0).(blockchain_listener.Finalized), args.Error(1)
}

var genesisHash = solana.Hash{7, 7, 7}

func newSolanaService(t *testing.T) (*services.SolanaIntegrationService, *MockSolanaRPC, *MockConfirmer, solana.PrivateKey) {
	t.Helper()
	feePayer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	client := new(MockSolanaRPC)
	confirmer := new(MockConfirmer)
	client.On("GetSlot", mock.Anything, rpc.CommitmentFinalized).Return(uint64(5000), nil)
	client.On("GetGenesisHash", mock.Anything).Return(genesisHash, nil)
	svc := services.NewSolanaIntegrationService(client, feePayer, confirmer, services.SolanaOptions{ValidityWindow: 150, Fee: 5000}, nil)
	return svc, client, confirmer, feePayer
}

func TestSolanaParams(t *testing.T) {
	svc, _, _, feePayer := newSolanaService(t)

	params, err := svc.Params(context.Background())

	require.NoError(t, err)
	assert.Equal(t, genesisHash.String(), params.GenesisID)
	assert.Equal(t, uint64(5000), params.FirstValid)
	assert.Equal(t, uint64(150), params.ValidityWindow)
	assert.Equal(t, feePayer.PublicKey().String(), params.Escrow)
}

func TestSolanaSubmitAnchorsEnvelopeAsMemo(t *testing.T) {
	svc, client, confirmer, feePayer := newSolanaService(t)
	ctx := context.Background()
	params, err := svc.Params(ctx)
	require.NoError(t, err)
	signed := signedFor(t, newWallet(t), params)
	txSig := solana.Signature{4, 2}

	client.On("GetLatestBlockhash", mock.Anything, rpc.CommitmentFinalized).
		Return(&rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{9}}}, nil).Once()
	client.On("SendTransactionWithOpts", mock.Anything, mock.MatchedBy(func(tx *solana.Transaction) bool {
		if len(tx.Message.Instructions) != 1 || len(tx.Signatures) != 1 {
			return false
		}
		ix := tx.Message.Instructions[0]
		program := tx.Message.AccountKeys[ix.ProgramIDIndex]
		return program.Equals(services.MemoProgramID) &&
			tx.Message.AccountKeys[0].Equals(feePayer.PublicKey()) &&
			strings.Contains(string(ix.Data), codec.Digest(signed.Payload))
	}), mock.Anything).Return(txSig, nil).Once()
	confirmer.On("WaitFinalized", mock.Anything, txSig).Return(blockchain_listener.Finalized{Signature: txSig, Slot: 5003}, nil).Once()

	conf, err := svc.Submit(ctx, signed)

	require.NoError(t, err)
	assert.Equal(t, txSig.String(), conf.ID)
	assert.Equal(t, uint64(5003), conf.Round)
	client.AssertExpectations(t)
	confirmer.AssertExpectations(t)
}

func TestSolanaSubmitRejectsBeforeSending(t *testing.T) {
	svc, client, confirmer, _ := newSolanaService(t)
	p := baseParams
	p.FirstValid = 5000
	signed := signedFor(t, newWallet(t), p) // genesis de outra rede

	_, err := svc.Submit(context.Background(), signed)

	assert.ErrorIs(t, err, apperrors.ErrNetworkRejected)
	client.AssertNotCalled(t, "SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything)
	confirmer.AssertNotCalled(t, "WaitFinalized", mock.Anything, mock.Anything)
}

func TestSolanaSubmitFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("send", func(t *testing.T) {
		svc, client, _, _ := newSolanaService(t)
		params, _ := svc.Params(ctx)
		client.On("GetLatestBlockhash", mock.Anything, mock.Anything).
			Return(&rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{9}}}, nil)
		client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).
			Return(solana.Signature{}, errors.New("saldo insuficiente para a taxa"))

		_, err := svc.Submit(ctx, signedFor(t, newWallet(t), params))

		assert.ErrorIs(t, err, apperrors.ErrNetworkRejected)
	})

	t.Run("finalization", func(t *testing.T) {
		svc, client, confirmer, _ := newSolanaService(t)
		params, _ := svc.Params(ctx)
		client.On("GetLatestBlockhash", mock.Anything, mock.Anything).
			Return(&rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: solana.Hash{9}}}, nil)
		client.On("SendTransactionWithOpts", mock.Anything, mock.Anything, mock.Anything).Return(solana.Signature{1}, nil)
		confirmer.On("WaitFinalized", mock.Anything, solana.Signature{1}).
			Return(blockchain_listener.Finalized{}, apperrors.ErrSubmitTimeout)

		_, err := svc.Submit(ctx, signedFor(t, newWallet(t), params))

		assert.ErrorIs(t, err, apperrors.ErrSubmitTimeout)
	})
}
