package storage

import (
	"context"
	"testing"
	"time"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/ledger"
	"github.com/ferreirogomes/cotas/models"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB("sqlite", ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDBRejectsUnknownDriver(t *testing.T) {
	_, err := NewDB("mysql", "root@/cotas", nil)
	assert.Error(t, err)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, runMigrations(db.DB.DB, "sqlite3", zap.NewNop()))
}

func TestLoadEmptyDatabase(t *testing.T) {
	db := newTestDB(t)

	cs, err := db.Load(context.Background())

	require.NoError(t, err)
	assert.True(t, cs.Empty())
}

// TestCommitAndLoadRebuildsLedger roda um ciclo completo sobre o banco e reconstrói o
// ledger a partir do que foi salvo.
func TestCommitAndLoadRebuildsLedger(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	clk := clock.NewMock()
	clk.Add(1000 * time.Hour)
	own := ledger.NewOwnershipLedger(db, clk, nil)
	income := ledger.NewIncomeDistributor(own, nil)
	gov := ledger.NewGovernanceEngine(own, nil)

	_, err := own.ListAsset(ctx, models.AssetSpec{ID: "sala-01", Name: "Sala 01", Symbol: "SL01", OwnerID: "emissor", TotalUnits: 1000, UnitPrice: 10})
	require.NoError(t, err)
	_, err = own.ApplyVerdict(ctx, "sala-01", models.VerdictApproved)
	require.NoError(t, err)
	_, err = own.TransitionAsset(ctx, "sala-01", models.AssetActive)
	require.NoError(t, err)
	_, err = own.RecordPurchase(ctx, "sala-01", "ana", 600)
	require.NoError(t, err)
	_, err = own.RecordPurchase(ctx, "sala-01", "bia", 300)
	require.NoError(t, err)
	_, err = income.DepositIncome(ctx, "sala-01", 1000)
	require.NoError(t, err)
	claimed, err := income.Claim(ctx, "sala-01", "ana")
	require.NoError(t, err)
	require.Equal(t, uint64(600), claimed)

	p, err := gov.CreateProposal(ctx, models.ProposalSpec{AssetID: "sala-01", ProposerID: "ana", Type: models.ProposalSell,
		Description: "Venda da sala", ProposedValue: 20000, VotingWindow: 48 * time.Hour})
	require.NoError(t, err)
	_, err = gov.CastVote(ctx, p.ID, "ana", models.VoteYes)
	require.NoError(t, err)
	clk.Add(49 * time.Hour)
	_, err = gov.Finalize(ctx, p.ID)
	require.NoError(t, err)
	settlement, err := gov.SettleSale(ctx, p.ID, "compradora", 20000)
	require.NoError(t, err)

	cs, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, cs.Assets, 1)
	require.Len(t, cs.Holdings, 2)
	require.Len(t, cs.Accruals, 1)
	require.Len(t, cs.Proposals, 1)
	require.Len(t, cs.Votes, 1)
	require.Len(t, cs.Settlements, 1)

	asset := cs.Assets[0]
	assert.Equal(t, models.AssetWoundUp, asset.State)
	assert.Equal(t, models.VerdictApproved, asset.Verdict)
	assert.Equal(t, uint64(900), asset.SoldUnits)
	assert.Equal(t, "SL01", asset.Symbol)
	assert.True(t, clk.Now().Equal(asset.UpdatedAt))

	assert.Equal(t, models.ProposalExecuted, cs.Proposals[0].Status)
	assert.Equal(t, uint64(600), cs.Proposals[0].YesWeight)
	assert.True(t, clk.Now().Equal(cs.Proposals[0].ExecutedAt))
	assert.Equal(t, settlement.Payouts, cs.Settlements[0].Payouts)
	assert.Equal(t, uint64(20000-12000-6000), cs.Settlements[0].IssuerShare)

	restoredOwn := ledger.NewOwnershipLedger(nil, clk, nil)
	restoredOwn.Restore(cs)
	restoredIncome := ledger.NewIncomeDistributor(restoredOwn, nil)
	restoredIncome.Restore(cs)
	restoredGov := ledger.NewGovernanceEngine(restoredOwn, nil)
	restoredGov.Restore(cs)

	h, err := restoredOwn.Holding("sala-01", "bia")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), h.Units)
	assert.Equal(t, uint64(3045), h.Invested)

	claimable, err := restoredIncome.ClaimableAmount("sala-01", "bia")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), claimable)
	claimable, err = restoredIncome.ClaimableAmount("sala-01", "ana")
	require.NoError(t, err)
	assert.Zero(t, claimable)

	_, voted := restoredGov.Vote(p.ID, "ana")
	assert.True(t, voted)
	restoredSettlement, found := restoredGov.Settlement("sala-01")
	require.True(t, found)
	assert.Equal(t, settlement.Payouts, restoredSettlement.Payouts)
}

func TestCommitIsAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	asset := models.Asset{ID: "a1", Name: "A1", TotalUnits: 10, UnitPrice: 1, State: models.AssetPending, ArticlesCID: "bafkreigh2akiscaildc", CreatedAt: now, UpdatedAt: now}
	proposal := models.Proposal{ID: "p1", AssetID: "a1", ProposerID: "ana", Type: models.ProposalRenovate, Description: "Reforma",
		TotalUnits: 10, CreatedAt: now, Deadline: now.Add(time.Hour), Status: models.ProposalActive, ResolutionCID: "bafkreiata"}
	vote := models.Vote{ProposalID: "p1", HolderID: "ana", Direction: models.VoteYes, Weight: 5, CastAt: now}
	require.NoError(t, db.Commit(ctx, models.ChangeSet{Assets: []models.Asset{asset}, Proposals: []models.Proposal{proposal}, Votes: []models.Vote{vote}}))

	other := asset
	other.ID = "a2"
	err := db.Commit(ctx, models.ChangeSet{Assets: []models.Asset{other}, Votes: []models.Vote{vote}})
	require.Error(t, err, "voto repetido viola a chave primária")

	cs, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, cs.Assets, 1)
	assert.Equal(t, "a1", cs.Assets[0].ID)
	assert.True(t, now.Equal(cs.Assets[0].CreatedAt))
	assert.Equal(t, "bafkreigh2akiscaildc", cs.Assets[0].ArticlesCID)
	assert.True(t, cs.Proposals[0].ExecutedAt.IsZero())
	assert.Equal(t, "bafkreiata", cs.Proposals[0].ResolutionCID)
}

func TestAppliedEnvelopesSurviveReload(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	clk := clock.NewMock()
	clk.Add(time.Hour)
	own := ledger.NewOwnershipLedger(db, clk, nil)
	ledger.NewIncomeDistributor(own, nil)

	_, err := own.ListAsset(ctx, models.AssetSpec{ID: "sala-01", Name: "Sala 01", TotalUnits: 100, UnitPrice: 10})
	require.NoError(t, err)
	_, err = own.ApplyVerdict(ctx, "sala-01", models.VerdictApproved)
	require.NoError(t, err)
	_, err = own.TransitionAsset(ctx, "sala-01", models.AssetActive)
	require.NoError(t, err)

	env := models.AppliedEnvelope{Digest: "ab12", AssetID: "sala-01", Kind: models.IntentBuy, ConfirmationID: "tx-1"}
	_, err = own.RecordPurchase(ledger.WithEnvelope(ctx, env), "sala-01", "ana", 10)
	require.NoError(t, err)

	cs, err := db.Load(ctx)
	require.NoError(t, err)
	require.Len(t, cs.Applied, 1)
	assert.Equal(t, "ab12", cs.Applied[0].Digest)
	assert.Equal(t, models.IntentBuy, cs.Applied[0].Kind)
	assert.Equal(t, "tx-1", cs.Applied[0].ConfirmationID)
	assert.True(t, clk.Now().Equal(cs.Applied[0].AppliedAt))

	restored := ledger.NewOwnershipLedger(db, clk, nil)
	ledger.NewIncomeDistributor(restored, nil)
	restored.Restore(cs)
	_, err = restored.RecordPurchase(ledger.WithEnvelope(ctx, env), "sala-01", "ana", 10)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyApplied)

	err = db.Commit(ctx, models.ChangeSet{Applied: []models.AppliedEnvelope{env}})
	assert.Error(t, err, "digest repetido viola a chave primária")
}
