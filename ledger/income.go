package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"

	"github.com/andres-erbsen/clock"
	"go.uber.org/zap"
)

// IncomeDistributor distribui renda por pull: um depósito avança um único índice por ativo e
// cada detentor resgata a sua parte quando quiser.
//
// O índice é renda por unidade escalada por models.IncomeScale. O resto da divisão inteira é
// levado ao numerador do depósito seguinte, então a perda de arredondamento não se acumula.
type IncomeDistributor struct {
	own    *OwnershipLedger
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.RWMutex
	accruals map[string]models.IncomeAccrual
	claims   map[string]map[string]models.ClaimRecord // ativo -> detentor -> cursor
}

// NewIncomeDistributor cria o distribuidor e o registra para acompanhar mudanças de unidades.
func NewIncomeDistributor(own *OwnershipLedger, logger *zap.Logger) *IncomeDistributor {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &IncomeDistributor{
		own:      own,
		clock:    own.clock,
		logger:   logger,
		accruals: make(map[string]models.IncomeAccrual),
		claims:   make(map[string]map[string]models.ClaimRecord),
	}
	own.observe(d)
	return d
}

// DepositIncome soma uma renda ao índice do ativo.
func (d *IncomeDistributor) DepositIncome(ctx context.Context, assetID string, amount uint64) (models.IncomeAccrual, error) {
	if amount == 0 {
		return models.IncomeAccrual{}, apperrors.Newf(apperrors.ErrInvalidAmount, "depósito deve ser maior que zero")
	}

	unlock := d.own.locks.Lock(assetID)
	defer unlock()

	if err := d.own.checkEnvelope(ctx, assetID); err != nil {
		return models.IncomeAccrual{}, err
	}
	asset, err := d.own.Asset(assetID)
	if err != nil {
		return models.IncomeAccrual{}, err
	}
	if asset.State != models.AssetActive && asset.State != models.AssetFullyAllocated {
		return models.IncomeAccrual{}, apperrors.Newf(apperrors.ErrNotDistributable, "ativo %s está em %s", assetID, asset.State)
	}

	acc := d.accrual(assetID)
	scaled, err := mul(amount, models.IncomeScale)
	if err != nil {
		return models.IncomeAccrual{}, err
	}
	numerator, err := add(scaled, acc.Remainder)
	if err != nil {
		return models.IncomeAccrual{}, err
	}
	if acc.Index, err = add(acc.Index, numerator/asset.TotalUnits); err != nil {
		return models.IncomeAccrual{}, err
	}
	if acc.TotalDeposited, err = add(acc.TotalDeposited, amount); err != nil {
		return models.IncomeAccrual{}, err
	}
	now := d.clock.Now()
	acc.Remainder = numerator % asset.TotalUnits
	acc.DepositCount++
	acc.LastDepositAmount = amount
	acc.LastDepositAt = now
	acc.NextDepositDue = now.Add(models.DepositPeriod)

	if err := d.own.commit(ctx, models.ChangeSet{Accruals: []models.IncomeAccrual{acc}}); err != nil {
		return models.IncomeAccrual{}, fmt.Errorf("falha ao persistir depósito: %w", err)
	}
	d.mu.Lock()
	d.accruals[assetID] = acc
	d.mu.Unlock()

	d.logger.Info("renda depositada",
		zap.String("asset_id", assetID),
		zap.Uint64("amount", amount),
		zap.Uint64("index", acc.Index),
		zap.Uint64("remainder", acc.Remainder),
	)
	return acc, nil
}

// ClaimableAmount devolve quanto o detentor pode resgatar agora. Não altera estado.
func (d *IncomeDistributor) ClaimableAmount(assetID, holderID string) (uint64, error) {
	unlock := d.own.locks.Lock(assetID)
	defer unlock()

	if _, err := d.own.Asset(assetID); err != nil {
		return 0, err
	}
	rec, found := d.claimRecord(assetID, holderID)
	if !found {
		return 0, nil
	}
	h, _ := d.own.holding(assetID, holderID)
	scaled, err := accrued(rec, d.accrual(assetID).Index, h.Units)
	if err != nil {
		return 0, err
	}
	return scaled / models.IncomeScale, nil
}

// Claim paga ao detentor a renda acumulada desde o último resgate. O cursor avança junto com o
// cálculo do valor, sob o mesmo cadeado e no mesmo ChangeSet, então o mesmo avanço de índice
// nunca é pago duas vezes.
func (d *IncomeDistributor) Claim(ctx context.Context, assetID, holderID string) (uint64, error) {
	unlock := d.own.locks.Lock(assetID)
	defer unlock()

	if err := d.own.checkEnvelope(ctx, assetID); err != nil {
		return 0, err
	}
	if _, err := d.own.Asset(assetID); err != nil {
		return 0, err
	}
	rec, found := d.claimRecord(assetID, holderID)
	if !found {
		return 0, apperrors.Newf(apperrors.ErrNothingToClaim, "detentor %s não tem histórico no ativo %s", holderID, assetID)
	}
	h, _ := d.own.holding(assetID, holderID)
	index := d.accrual(assetID).Index
	scaled, err := accrued(rec, index, h.Units)
	if err != nil {
		return 0, err
	}
	amount := scaled / models.IncomeScale
	if amount == 0 {
		return 0, apperrors.Newf(apperrors.ErrNothingToClaim, "nada a resgatar no ativo %s", assetID)
	}
	if rec.Claimed, err = add(rec.Claimed, amount); err != nil {
		return 0, err
	}
	rec.Pending = scaled % models.IncomeScale
	rec.LastIndex = index
	rec.LastClaimAt = d.clock.Now()

	if err := d.own.commit(ctx, models.ChangeSet{Claims: []models.ClaimRecord{rec}}); err != nil {
		return 0, fmt.Errorf("falha ao persistir resgate: %w", err)
	}
	d.putClaim(rec)

	d.logger.Info("renda resgatada", zap.String("asset_id", assetID), zap.String("holder_id", holderID), zap.Uint64("amount", amount))
	return amount, nil
}

// FlagMissedDeposit registra que o depósito trimestral esperado não aconteceu.
func (d *IncomeDistributor) FlagMissedDeposit(ctx context.Context, assetID string) (models.IncomeAccrual, error) {
	unlock := d.own.locks.Lock(assetID)
	defer unlock()

	d.mu.RLock()
	acc, found := d.accruals[assetID]
	d.mu.RUnlock()
	if !found {
		return models.IncomeAccrual{}, apperrors.Newf(apperrors.ErrNotFound, "ativo %s não tem histórico de renda", assetID)
	}
	if !d.clock.Now().After(acc.NextDepositDue) {
		return models.IncomeAccrual{}, apperrors.Newf(apperrors.ErrTooEarly, "próximo depósito vence em %s", acc.NextDepositDue.Format("2006-01-02"))
	}
	acc.MissedDeposits++
	acc.NextDepositDue = acc.NextDepositDue.Add(models.DepositPeriod)

	if err := d.own.commit(ctx, models.ChangeSet{Accruals: []models.IncomeAccrual{acc}}); err != nil {
		return models.IncomeAccrual{}, fmt.Errorf("falha ao persistir falta de depósito: %w", err)
	}
	d.mu.Lock()
	d.accruals[assetID] = acc
	d.mu.Unlock()

	d.logger.Warn("depósito de renda não realizado", zap.String("asset_id", assetID), zap.Uint64("missed", acc.MissedDeposits))
	return acc, nil
}

// stageUnitsChange apura a renda da posição antiga antes que as unidades mudem.
// Chamado pelo OwnershipLedger com o cadeado do ativo já adquirido.
func (d *IncomeDistributor) stageUnitsChange(assetID, holderID string, oldUnits uint64, cs *models.ChangeSet) (func(), error) {
	index := d.accrual(assetID).Index
	rec, found := d.claimRecord(assetID, holderID)
	if !found {
		rec = models.ClaimRecord{AssetID: assetID, HolderID: holderID}
	} else {
		scaled, err := accrued(rec, index, oldUnits)
		if err != nil {
			return nil, err
		}
		rec.Pending = scaled
	}
	rec.LastIndex = index

	cs.Claims = append(cs.Claims, rec)
	return func() { d.putClaim(rec) }, nil
}

// accrued devolve a renda escalada ainda não paga: pendente + (índice − último índice) × unidades.
func accrued(rec models.ClaimRecord, index, units uint64) (uint64, error) {
	delta, err := mul(index-rec.LastIndex, units)
	if err != nil {
		return 0, err
	}
	return add(rec.Pending, delta)
}

// Accrual devolve as estatísticas de renda do ativo.
func (d *IncomeDistributor) Accrual(assetID string) (models.IncomeAccrual, error) {
	if _, err := d.own.Asset(assetID); err != nil {
		return models.IncomeAccrual{}, err
	}
	return d.accrual(assetID), nil
}

func (d *IncomeDistributor) accrual(assetID string) models.IncomeAccrual {
	d.mu.RLock()
	defer d.mu.RUnlock()
	acc, ok := d.accruals[assetID]
	if !ok {
		return models.IncomeAccrual{AssetID: assetID}
	}
	return acc
}

// ClaimRecord devolve o cursor de resgate do detentor.
func (d *IncomeDistributor) ClaimRecord(assetID, holderID string) (models.ClaimRecord, bool) {
	return d.claimRecord(assetID, holderID)
}

func (d *IncomeDistributor) claimRecord(assetID, holderID string) (models.ClaimRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.claims[assetID][holderID]
	return rec, ok
}

func (d *IncomeDistributor) putClaim(rec models.ClaimRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claims[rec.AssetID] == nil {
		d.claims[rec.AssetID] = make(map[string]models.ClaimRecord)
	}
	d.claims[rec.AssetID][rec.HolderID] = rec
}

// Restore carrega cursores e acumulados de um snapshot persistido.
func (d *IncomeDistributor) Restore(snapshot models.ChangeSet) {
	for _, rec := range snapshot.Claims {
		d.putClaim(rec)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, acc := range snapshot.Accruals {
		d.accruals[acc.AssetID] = acc
	}
}
