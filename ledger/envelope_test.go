package ledger_test

import (
	"context"
	"testing"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/ledger"
	"github.com/ferreirogomes/cotas/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedCtx(digest, assetID string, kind models.IntentKind) context.Context {
	return ledger.WithEnvelope(context.Background(), models.AppliedEnvelope{Digest: digest, AssetID: assetID, Kind: kind, ConfirmationID: "conf-" + digest})
}

// snapshotOf junta os ChangeSets gravados como se tivessem sido lidos do banco.
func snapshotOf(store *recordingStore) models.ChangeSet {
	var snapshot models.ChangeSet
	for _, cs := range store.commits {
		snapshot.Assets = append(snapshot.Assets, cs.Assets...)
		snapshot.Holdings = append(snapshot.Holdings, cs.Holdings...)
		snapshot.Claims = append(snapshot.Claims, cs.Claims...)
		snapshot.Accruals = append(snapshot.Accruals, cs.Accruals...)
		snapshot.Proposals = append(snapshot.Proposals, cs.Proposals...)
		snapshot.Votes = append(snapshot.Votes, cs.Votes...)
		snapshot.Applied = append(snapshot.Applied, cs.Applied...)
	}
	return snapshot
}

func TestEnvelopeIsAppliedOnceAcrossRestart(t *testing.T) {
	store := &recordingStore{}
	f := newFixture(store)
	f.activeAsset(t, "a1", 100, 10)
	ctx := signedCtx("d1", "a1", models.IntentBuy)

	_, err := f.own.RecordPurchase(ctx, "a1", "ana", 10)
	require.NoError(t, err)

	last := store.commits[len(store.commits)-1]
	require.Len(t, last.Applied, 1, "digest vai no mesmo ChangeSet da compra")
	assert.Equal(t, "d1", last.Applied[0].Digest)
	assert.Equal(t, "conf-d1", last.Applied[0].ConfirmationID)
	assert.Equal(t, f.clock.Now(), last.Applied[0].AppliedAt)
	assert.True(t, f.own.Applied("d1"))

	_, err = f.own.RecordPurchase(ctx, "a1", "ana", 10)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyApplied)

	restored := newFixture(nil)
	snapshot := snapshotOf(store)
	restored.own.Restore(snapshot)
	restored.income.Restore(snapshot)

	_, err = restored.own.RecordPurchase(ctx, "a1", "ana", 10)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyApplied)
	h, err := restored.own.Holding("a1", "ana")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), h.Units)
	env, err := restored.own.AppliedEnvelope("d1")
	require.NoError(t, err)
	assert.Equal(t, models.IntentBuy, env.Kind)
}

func TestEnvelopeReplayRejectedForEveryMutation(t *testing.T) {
	f := newFixture(nil)
	f.activeAsset(t, "a1", 1000, 1)
	f.buy(t, "a1", "ana", 600)
	p := f.propose(t, "a1", "ana", models.ProposalRenovate, 0)

	ctx := signedCtx("dep", "a1", models.IntentDepositIncome)
	_, err := f.income.DepositIncome(ctx, "a1", 1000)
	require.NoError(t, err)
	_, err = f.income.DepositIncome(ctx, "a1", 1000)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyApplied)

	ctx = signedCtx("claim", "a1", models.IntentClaimIncome)
	_, err = f.income.Claim(ctx, "a1", "ana")
	require.NoError(t, err)
	_, err = f.income.Claim(ctx, "a1", "ana")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyApplied)

	ctx = signedCtx("vote", "a1", models.IntentCastVote)
	_, err = f.gov.CastVote(ctx, p.ID, "ana", models.VoteYes)
	require.NoError(t, err)
	_, err = f.gov.CastVote(ctx, p.ID, "ana", models.VoteYes)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyApplied)

	acc, err := f.income.Accrual("a1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), acc.TotalDeposited)
}

func TestEnvelopeForAnotherAssetIsRefused(t *testing.T) {
	f := newFixture(nil)
	f.activeAsset(t, "a1", 100, 10)

	_, err := f.own.RecordPurchase(signedCtx("d1", "a2", models.IntentBuy), "a1", "ana", 10)

	assert.ErrorIs(t, err, apperrors.ErrInvalidIntent)
	assert.False(t, f.own.Applied("d1"))
}

func TestEnvelopeNotMarkedWhenStoreFails(t *testing.T) {
	store := &recordingStore{}
	f := newFixture(store)
	f.activeAsset(t, "a1", 100, 10)
	ctx := signedCtx("d1", "a1", models.IntentBuy)

	store.fail = true
	_, err := f.own.RecordPurchase(ctx, "a1", "ana", 10)
	require.Error(t, err)
	assert.False(t, f.own.Applied("d1"))

	store.fail = false
	_, err = f.own.RecordPurchase(ctx, "a1", "ana", 10)
	assert.NoError(t, err)
}
