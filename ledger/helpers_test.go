package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ferreirogomes/cotas/ledger"
	"github.com/ferreirogomes/cotas/models"

	"github.com/andres-erbsen/clock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	clock  *clock.Mock
	own    *ledger.OwnershipLedger
	income *ledger.IncomeDistributor
	gov    *ledger.GovernanceEngine
}

func newFixture(store ledger.Store) *fixture {
	clk := clock.NewMock()
	own := ledger.NewOwnershipLedger(store, clk, nil)
	return &fixture{
		clock:  clk,
		own:    own,
		income: ledger.NewIncomeDistributor(own, nil),
		gov:    ledger.NewGovernanceEngine(own, nil),
	}
}

// activeAsset lista um ativo e o leva até active.
func (f *fixture) activeAsset(t *testing.T, id string, total, price int64) models.Asset {
	t.Helper()
	ctx := context.Background()
	_, err := f.own.ListAsset(ctx, models.AssetSpec{ID: id, Name: "Edifício " + id, TotalUnits: total, UnitPrice: price, OwnerID: "emissor"})
	require.NoError(t, err)
	_, err = f.own.ApplyVerdict(ctx, id, models.VerdictApproved)
	require.NoError(t, err)
	asset, err := f.own.TransitionAsset(ctx, id, models.AssetActive)
	require.NoError(t, err)
	return asset
}

func (f *fixture) buy(t *testing.T, assetID, holderID string, units uint64) {
	t.Helper()
	_, err := f.own.RecordPurchase(context.Background(), assetID, holderID, units)
	require.NoError(t, err)
}

// recordingStore guarda os ChangeSets e pode ser configurado para falhar.
type recordingStore struct {
	commits []models.ChangeSet
	fail    bool
}

func (s *recordingStore) Commit(_ context.Context, cs models.ChangeSet) error {
	if s.fail {
		return errors.New("banco indisponível")
	}
	s.commits = append(s.commits, cs)
	return nil
}
