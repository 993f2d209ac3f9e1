package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositAndClaimProportionalIncome(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.activeAsset(t, "a1", 10000, 100)
	f.buy(t, "a1", "ana", 4000)

	_, err := f.income.DepositIncome(ctx, "a1", 100000)
	require.NoError(t, err)

	claimable, err := f.income.ClaimableAmount("a1", "ana")
	require.NoError(t, err)
	assert.Equal(t, uint64(40000), claimable)

	paid, err := f.income.Claim(ctx, "a1", "ana")
	require.NoError(t, err)
	assert.Equal(t, uint64(40000), paid)

	_, err = f.income.Claim(ctx, "a1", "ana")
	assert.ErrorIs(t, err, apperrors.ErrNothingToClaim)

	rec, found := f.income.ClaimRecord("a1", "ana")
	require.True(t, found)
	assert.Equal(t, uint64(40000), rec.Claimed)
}

func TestClaimWithoutHistory(t *testing.T) {
	f := newFixture(nil)
	f.activeAsset(t, "a1", 100, 1)

	_, err := f.income.Claim(context.Background(), "a1", "ninguem")
	assert.ErrorIs(t, err, apperrors.ErrNothingToClaim)

	claimable, err := f.income.ClaimableAmount("a1", "ninguem")
	require.NoError(t, err)
	assert.Zero(t, claimable)
}

func TestRemainderCarriesIntoNextDeposit(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.activeAsset(t, "a1", 3, 10)
	for _, h := range []string{"ana", "bia", "caio"} {
		f.buy(t, "a1", h, 1)
	}

	for i := 0; i < 3; i++ {
		_, err := f.income.DepositIncome(ctx, "a1", 1)
		require.NoError(t, err)
	}

	acc, err := f.income.Accrual("a1")
	require.NoError(t, err)
	assert.Equal(t, uint64(models.IncomeScale), acc.Index)
	assert.Zero(t, acc.Remainder)
	assert.Equal(t, uint64(3), acc.TotalDeposited)

	var total uint64
	for _, h := range []string{"ana", "bia", "caio"} {
		paid, err := f.income.Claim(ctx, "a1", h)
		require.NoError(t, err)
		total += paid
	}
	assert.Equal(t, uint64(3), total)
}

func TestNewBuyerDoesNotEarnPastDeposits(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.activeAsset(t, "a1", 1000, 1)
	f.buy(t, "a1", "ana", 500)

	_, err := f.income.DepositIncome(ctx, "a1", 1000)
	require.NoError(t, err)
	f.buy(t, "a1", "bia", 500)

	claimable, err := f.income.ClaimableAmount("a1", "bia")
	require.NoError(t, err)
	assert.Zero(t, claimable)

	_, err = f.income.DepositIncome(ctx, "a1", 1000)
	require.NoError(t, err)

	ana, _ := f.income.ClaimableAmount("a1", "ana")
	bia, _ := f.income.ClaimableAmount("a1", "bia")
	assert.Equal(t, uint64(1000), ana)
	assert.Equal(t, uint64(500), bia)
}

func TestTopUpKeepsIncomeEarnedBefore(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.activeAsset(t, "a1", 1000, 1)
	f.buy(t, "a1", "ana", 100)

	_, err := f.income.DepositIncome(ctx, "a1", 1000)
	require.NoError(t, err)
	f.buy(t, "a1", "ana", 400)

	claimable, err := f.income.ClaimableAmount("a1", "ana")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), claimable)

	_, err = f.income.DepositIncome(ctx, "a1", 1000)
	require.NoError(t, err)
	claimable, _ = f.income.ClaimableAmount("a1", "ana")
	assert.Equal(t, uint64(600), claimable)
}

func TestDepositRejections(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	_, err := f.own.ListAsset(ctx, models.AssetSpec{ID: "a1", TotalUnits: 10, UnitPrice: 1})
	require.NoError(t, err)

	_, err = f.income.DepositIncome(ctx, "a1", 10)
	assert.ErrorIs(t, err, apperrors.ErrNotDistributable)

	_, err = f.income.DepositIncome(ctx, "a1", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)

	_, err = f.income.DepositIncome(ctx, "nao-existe", 10)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDepositWithNoHoldersStaysWithIndex(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.activeAsset(t, "a1", 100, 1)

	_, err := f.income.DepositIncome(ctx, "a1", 100)
	require.NoError(t, err)
	f.buy(t, "a1", "ana", 100)

	claimable, err := f.income.ClaimableAmount("a1", "ana")
	require.NoError(t, err)
	assert.Zero(t, claimable)
}

func TestFlagMissedDeposit(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.activeAsset(t, "a1", 100, 1)

	_, err := f.income.FlagMissedDeposit(ctx, "a1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	acc, err := f.income.DepositIncome(ctx, "a1", 100)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(models.DepositPeriod), acc.NextDepositDue)

	_, err = f.income.FlagMissedDeposit(ctx, "a1")
	assert.ErrorIs(t, err, apperrors.ErrTooEarly)

	f.clock.Add(models.DepositPeriod + time.Hour)
	acc, err = f.income.FlagMissedDeposit(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acc.MissedDeposits)

	_, err = f.income.FlagMissedDeposit(ctx, "a1")
	assert.ErrorIs(t, err, apperrors.ErrTooEarly)
}

func TestClaimStoreFailureKeepsCursor(t *testing.T) {
	store := &recordingStore{}
	f := newFixture(store)
	ctx := context.Background()
	f.activeAsset(t, "a1", 10, 1)
	f.buy(t, "a1", "ana", 10)
	_, err := f.income.DepositIncome(ctx, "a1", 50)
	require.NoError(t, err)

	store.fail = true
	_, err = f.income.Claim(ctx, "a1", "ana")
	require.Error(t, err)

	store.fail = false
	paid, err := f.income.Claim(ctx, "a1", "ana")
	require.NoError(t, err)
	assert.Equal(t, uint64(50), paid)
}

func TestConcurrentClaimsPayOnce(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()
	f.activeAsset(t, "a1", 1000, 1)
	f.buy(t, "a1", "ana", 400)
	_, err := f.income.DepositIncome(ctx, "a1", 10000)
	require.NoError(t, err)
	claimable, err := f.income.ClaimableAmount("a1", "ana")
	require.NoError(t, err)
	require.Equal(t, uint64(4000), claimable)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var paid uint64
	succeeded, nothing := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			amount, err := f.income.Claim(ctx, "a1", "ana")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
				paid += amount
			case errors.Is(err, apperrors.ErrNothingToClaim):
				nothing++
			default:
				t.Errorf("erro inesperado: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 19, nothing)
	assert.Equal(t, claimable, paid)
	rec, found := f.income.ClaimRecord("a1", "ana")
	require.True(t, found)
	assert.Equal(t, claimable, rec.Claimed)
}
