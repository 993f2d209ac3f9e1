package blockchain_listener_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/blockchain_listener"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStatusClient struct {
	mock.Mock
}

func (m *MockStatusClient) GetSignatureStatuses(ctx context.Context, search bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	args := m.Called(sigs[0])
	res, _ := args.Get(0).(*rpc.GetSignatureStatusesResult)
	return res, args.Error(1)
}

func statusResult(status rpc.ConfirmationStatusType, slot uint64, txErr interface{}) *rpc.GetSignatureStatusesResult {
	return &rpc.GetSignatureStatusesResult{
		Value: []*rpc.SignatureStatusesResult{{Slot: slot, ConfirmationStatus: status, Err: txErr}},
	}
}

func TestWaitFinalizedPollsUntilFinalized(t *testing.T) {
	client := new(MockStatusClient)
	sig := solana.Signature{1, 2, 3}
	client.On("GetSignatureStatuses", sig).Return(nil, errors.New("rpc indisponível")).Once()
	client.On("GetSignatureStatuses", sig).Return(statusResult(rpc.ConfirmationStatusConfirmed, 41, nil), nil).Once()
	client.On("GetSignatureStatuses", sig).Return(statusResult(rpc.ConfirmationStatusFinalized, 42, nil), nil).Once()
	l := blockchain_listener.NewBlockchainListener(client, time.Millisecond, nil)

	out, err := l.WaitFinalized(context.Background(), sig)

	require.NoError(t, err)
	assert.Equal(t, uint64(42), out.Slot)
	assert.Equal(t, sig, out.Signature)
	client.AssertExpectations(t)
}

func TestWaitFinalizedReportsOnChainFailure(t *testing.T) {
	client := new(MockStatusClient)
	sig := solana.Signature{9}
	client.On("GetSignatureStatuses", sig).Return(statusResult(rpc.ConfirmationStatusProcessed, 7, map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}), nil)
	l := blockchain_listener.NewBlockchainListener(client, time.Millisecond, nil)

	_, err := l.WaitFinalized(context.Background(), sig)

	assert.ErrorIs(t, err, apperrors.ErrNetworkRejected)
}

func TestWaitFinalizedTimesOut(t *testing.T) {
	client := new(MockStatusClient)
	sig := solana.Signature{5}
	client.On("GetSignatureStatuses", sig).Return(&rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil)
	l := blockchain_listener.NewBlockchainListener(client, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.WaitFinalized(ctx, sig)

	assert.ErrorIs(t, err, apperrors.ErrSubmitTimeout)
	assert.True(t, apperrors.Retryable(err))
}
