package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"

	"github.com/andres-erbsen/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// transitions lista os avanços permitidos do ciclo de vida de um ativo.
var transitions = map[models.AssetState][]models.AssetState{
	models.AssetPending:        {models.AssetVerified},
	models.AssetVerified:       {models.AssetActive},
	models.AssetActive:         {models.AssetFullyAllocated, models.AssetWoundUp},
	models.AssetFullyAllocated: {models.AssetWoundUp},
}

func canTransition(from, to models.AssetState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// unitsObserver é avisado antes que as unidades de uma posição mudem, ainda sob o cadeado do ativo.
// Deve acrescentar seus registros ao ChangeSet e devolver a função que os publica após o commit.
type unitsObserver interface {
	stageUnitsChange(assetID, holderID string, oldUnits uint64, cs *models.ChangeSet) (func(), error)
}

// OwnershipLedger é o dono exclusivo de Asset e Holding.
type OwnershipLedger struct {
	locks  *KeyLocks
	store  Store
	clock  clock.Clock
	logger *zap.Logger

	mu        sync.RWMutex
	assets    map[string]models.Asset
	holdings  map[string]map[string]models.Holding // ativo -> detentor -> posição
	applied   map[string]models.AppliedEnvelope    // digest -> aplicação
	observers []unitsObserver
}

// NewOwnershipLedger cria o ledger de posições. store, clk e logger podem ser nil.
func NewOwnershipLedger(store Store, clk clock.Clock, logger *zap.Logger) *OwnershipLedger {
	if store == nil {
		store = NopStore{}
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OwnershipLedger{
		locks:    NewKeyLocks(),
		store:    store,
		clock:    clk,
		logger:   logger,
		assets:   make(map[string]models.Asset),
		holdings: make(map[string]map[string]models.Holding),
		applied:  make(map[string]models.AppliedEnvelope),
	}
}

func (l *OwnershipLedger) observe(o unitsObserver) {
	l.observers = append(l.observers, o)
}

// ListAsset registra um novo ativo no estado pending.
func (l *OwnershipLedger) ListAsset(ctx context.Context, spec models.AssetSpec) (models.Asset, error) {
	if spec.TotalUnits <= 0 {
		return models.Asset{}, apperrors.Newf(apperrors.ErrInvalidSpec, "total de unidades deve ser maior que zero")
	}
	if spec.UnitPrice <= 0 {
		return models.Asset{}, apperrors.Newf(apperrors.ErrInvalidSpec, "preço unitário deve ser maior que zero")
	}
	total := uint64(spec.TotalUnits)
	if spec.MaxPurchase > 0 && spec.MaxPurchase < spec.MinPurchase {
		return models.Asset{}, apperrors.Newf(apperrors.ErrInvalidSpec, "compra máxima menor que a mínima")
	}
	if spec.MaxPurchase > total || spec.MinPurchase > total {
		return models.Asset{}, apperrors.Newf(apperrors.ErrInvalidSpec, "limites de compra maiores que o total de unidades")
	}
	if _, err := mul(total, uint64(spec.UnitPrice)); err != nil {
		return models.Asset{}, apperrors.Wrap(apperrors.ErrInvalidSpec, err)
	}

	articles, err := normalizeCID(spec.ArticlesCID)
	if err != nil {
		return models.Asset{}, apperrors.Wrap(apperrors.ErrInvalidSpec, err)
	}

	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = uuid.New().String()
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	if _, err := l.Asset(id); err == nil {
		return models.Asset{}, apperrors.Newf(apperrors.ErrInvalidSpec, "ativo %s já existe", id)
	}

	now := l.clock.Now()
	asset := models.Asset{
		ID:          id,
		Name:        spec.Name,
		Symbol:      spec.Symbol,
		OwnerID:     spec.OwnerID,
		TotalUnits:  total,
		UnitPrice:   uint64(spec.UnitPrice),
		MinPurchase: spec.MinPurchase,
		MaxPurchase: spec.MaxPurchase,
		ArticlesCID: articles,
		State:       models.AssetPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.commit(ctx, models.ChangeSet{Assets: []models.Asset{asset}}); err != nil {
		return models.Asset{}, fmt.Errorf("falha ao persistir ativo: %w", err)
	}

	l.mu.Lock()
	l.assets[id] = asset
	l.mu.Unlock()

	l.logger.Info("ativo listado", zap.String("asset_id", id), zap.Uint64("total_units", total), zap.Uint64("unit_price", asset.UnitPrice))
	return asset, nil
}

// TransitionAsset avança o ciclo de vida do ativo um passo por vez.
func (l *OwnershipLedger) TransitionAsset(ctx context.Context, id string, to models.AssetState) (models.Asset, error) {
	unlock := l.locks.Lock(id)
	defer unlock()

	asset, err := l.Asset(id)
	if err != nil {
		return models.Asset{}, err
	}
	if !canTransition(asset.State, to) {
		return models.Asset{}, apperrors.Newf(apperrors.ErrInvalidTransition, "transição %s → %s não permitida", asset.State, to)
	}
	if to == models.AssetFullyAllocated && asset.SoldUnits != asset.TotalUnits {
		return models.Asset{}, apperrors.Newf(apperrors.ErrInvalidTransition, "ativo %s ainda tem %d unidades disponíveis", id, asset.AvailableUnits())
	}

	return l.commitAsset(ctx, asset, to)
}

// ApplyVerdict consome o veredito terminal do oráculo de verificação.
// Só approved move o ativo (pending → verified); os demais ficam registrados.
func (l *OwnershipLedger) ApplyVerdict(ctx context.Context, id string, verdict models.Verdict) (models.Asset, error) {
	if !verdict.Valid() {
		return models.Asset{}, apperrors.Newf(apperrors.ErrInvalidSpec, "veredito desconhecido: %q", verdict)
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	asset, err := l.Asset(id)
	if err != nil {
		return models.Asset{}, err
	}
	if asset.State != models.AssetPending {
		return models.Asset{}, apperrors.Newf(apperrors.ErrInvalidTransition, "ativo %s não está aguardando verificação", id)
	}

	asset.Verdict = verdict
	to := asset.State
	if verdict == models.VerdictApproved {
		to = models.AssetVerified
	}
	return l.commitAsset(ctx, asset, to)
}

func (l *OwnershipLedger) commitAsset(ctx context.Context, asset models.Asset, to models.AssetState) (models.Asset, error) {
	from := asset.State
	asset.State = to
	asset.UpdatedAt = l.clock.Now()
	if err := l.commit(ctx, models.ChangeSet{Assets: []models.Asset{asset}}); err != nil {
		return models.Asset{}, fmt.Errorf("falha ao persistir ativo: %w", err)
	}

	l.mu.Lock()
	l.assets[asset.ID] = asset
	l.mu.Unlock()

	l.logger.Info("estado do ativo atualizado", zap.String("asset_id", asset.ID), zap.String("from", string(from)), zap.String("to", string(to)))
	return asset, nil
}

// stageAssetState acrescenta ao ChangeSet de outro componente a mudança de estado do ativo.
// Deve ser chamado sob o cadeado do ativo; a função devolvida publica o ativo depois do commit.
func (l *OwnershipLedger) stageAssetState(id string, to models.AssetState, cs *models.ChangeSet) (models.Asset, func(), error) {
	asset, err := l.Asset(id)
	if err != nil {
		return models.Asset{}, nil, err
	}
	if !canTransition(asset.State, to) {
		return models.Asset{}, nil, apperrors.Newf(apperrors.ErrInvalidTransition, "ativo %s não pode passar de %s para %s", id, asset.State, to)
	}
	from := asset.State
	asset.State = to
	asset.UpdatedAt = l.clock.Now()
	cs.Assets = append(cs.Assets, asset)

	return asset, func() {
		l.mu.Lock()
		l.assets[id] = asset
		l.mu.Unlock()
		l.logger.Info("estado do ativo atualizado", zap.String("asset_id", id), zap.String("from", string(from)), zap.String("to", string(to)))
	}, nil
}

// Quote calcula o custo de uma compra: unidades × preço mais 1,5% de seguro.
func (l *OwnershipLedger) Quote(assetID string, units uint64) (models.Quote, error) {
	asset, err := l.Asset(assetID)
	if err != nil {
		return models.Quote{}, err
	}
	return quote(asset, units)
}

func quote(asset models.Asset, units uint64) (models.Quote, error) {
	if units == 0 {
		return models.Quote{}, apperrors.Newf(apperrors.ErrInvalidUnits, "quantidade deve ser maior que zero")
	}
	cost, err := mul(units, asset.UnitPrice)
	if err != nil {
		return models.Quote{}, err
	}
	premium := mulDiv(models.InsuranceRatePerMille, cost, 1000)
	total, err := add(cost, premium)
	if err != nil {
		return models.Quote{}, err
	}
	return models.Quote{Units: units, Cost: cost, Premium: premium, Total: total}, nil
}

// RecordPurchase credita unidades a um detentor. Rejeita a compra inteira se ela excede a oferta.
func (l *OwnershipLedger) RecordPurchase(ctx context.Context, assetID, holderID string, units uint64) (models.Holding, error) {
	if strings.TrimSpace(holderID) == "" {
		return models.Holding{}, apperrors.Newf(apperrors.ErrInvalidIntent, "detentor é obrigatório")
	}
	if units == 0 {
		return models.Holding{}, apperrors.Newf(apperrors.ErrInvalidUnits, "quantidade deve ser maior que zero")
	}

	unlock := l.locks.Lock(assetID)
	defer unlock()

	if err := l.checkEnvelope(ctx, assetID); err != nil {
		return models.Holding{}, err
	}
	asset, err := l.Asset(assetID)
	if err != nil {
		return models.Holding{}, err
	}
	if asset.State != models.AssetActive {
		return models.Holding{}, apperrors.Newf(apperrors.ErrNotPurchasable, "ativo %s está em %s", assetID, asset.State)
	}
	if asset.MinPurchase > 0 && units < asset.MinPurchase {
		return models.Holding{}, apperrors.Newf(apperrors.ErrInvalidUnits, "compra mínima é de %d unidades", asset.MinPurchase)
	}
	if asset.MaxPurchase > 0 && units > asset.MaxPurchase {
		return models.Holding{}, apperrors.Newf(apperrors.ErrInvalidUnits, "compra máxima é de %d unidades", asset.MaxPurchase)
	}
	if units > asset.AvailableUnits() {
		return models.Holding{}, apperrors.Newf(apperrors.ErrOversold, "ativo %s: pedidas %d, disponíveis %d", assetID, units, asset.AvailableUnits())
	}
	q, err := quote(asset, units)
	if err != nil {
		return models.Holding{}, err
	}

	now := l.clock.Now()
	holding, found := l.holding(assetID, holderID)
	if !found {
		holding = models.Holding{AssetID: assetID, HolderID: holderID, CreatedAt: now}
	}

	var cs models.ChangeSet
	var publish []func()
	for _, o := range l.observers {
		fn, err := o.stageUnitsChange(assetID, holderID, holding.Units, &cs)
		if err != nil {
			return models.Holding{}, err
		}
		publish = append(publish, fn)
	}

	if holding.Invested, err = add(holding.Invested, q.Total); err != nil {
		return models.Holding{}, err
	}
	if asset.InsurancePool, err = add(asset.InsurancePool, q.Premium); err != nil {
		return models.Holding{}, err
	}
	holding.Units += units
	holding.UpdatedAt = now
	asset.SoldUnits += units
	asset.UpdatedAt = now
	if asset.SoldUnits == asset.TotalUnits {
		asset.State = models.AssetFullyAllocated
	}

	cs.Assets = append(cs.Assets, asset)
	cs.Holdings = append(cs.Holdings, holding)
	if err := l.commit(ctx, cs); err != nil {
		return models.Holding{}, fmt.Errorf("falha ao persistir compra: %w", err)
	}

	l.mu.Lock()
	l.assets[assetID] = asset
	if l.holdings[assetID] == nil {
		l.holdings[assetID] = make(map[string]models.Holding)
	}
	l.holdings[assetID][holderID] = holding
	l.mu.Unlock()
	for _, fn := range publish {
		fn()
	}

	l.logger.Info("compra registrada",
		zap.String("asset_id", assetID),
		zap.String("holder_id", holderID),
		zap.Uint64("units", units),
		zap.Uint64("sold_units", asset.SoldUnits),
		zap.String("state", string(asset.State)),
	)
	return holding, nil
}

// Asset devolve uma cópia do ativo.
func (l *OwnershipLedger) Asset(id string) (models.Asset, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	asset, ok := l.assets[id]
	if !ok {
		return models.Asset{}, apperrors.Newf(apperrors.ErrNotFound, "ativo %s não encontrado", id)
	}
	return asset, nil
}

// Assets lista todos os ativos ordenados por criação.
func (l *OwnershipLedger) Assets() []models.Asset {
	l.mu.RLock()
	out := make([]models.Asset, 0, len(l.assets))
	for _, a := range l.assets {
		out = append(out, a)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Holding devolve a posição do detentor; uma posição inexistente tem zero unidades.
func (l *OwnershipLedger) Holding(assetID, holderID string) (models.Holding, error) {
	if _, err := l.Asset(assetID); err != nil {
		return models.Holding{}, err
	}
	h, found := l.holding(assetID, holderID)
	if !found {
		return models.Holding{AssetID: assetID, HolderID: holderID}, nil
	}
	return h, nil
}

func (l *OwnershipLedger) holding(assetID, holderID string) (models.Holding, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.holdings[assetID][holderID]
	return h, ok
}

// Holdings lista as posições de um ativo ordenadas por detentor.
func (l *OwnershipLedger) Holdings(assetID string) []models.Holding {
	l.mu.RLock()
	out := make([]models.Holding, 0, len(l.holdings[assetID]))
	for _, h := range l.holdings[assetID] {
		out = append(out, h)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].HolderID < out[j].HolderID })
	return out
}

// OwnershipPercent devolve a fração do ativo detida, em percentual.
func (l *OwnershipLedger) OwnershipPercent(assetID, holderID string) (decimal.Decimal, error) {
	asset, err := l.Asset(assetID)
	if err != nil {
		return decimal.Zero, err
	}
	h, _ := l.holding(assetID, holderID)
	return decimal.NewFromUint64(h.Units).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromUint64(asset.TotalUnits), 4), nil
}

// Restore carrega assets, holdings e envelopes aplicados de um snapshot persistido.
func (l *OwnershipLedger) Restore(snapshot models.ChangeSet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range snapshot.Assets {
		l.assets[a.ID] = a
	}
	for _, h := range snapshot.Holdings {
		if l.holdings[h.AssetID] == nil {
			l.holdings[h.AssetID] = make(map[string]models.Holding)
		}
		l.holdings[h.AssetID][h.HolderID] = h
	}
	for _, env := range snapshot.Applied {
		l.applied[env.Digest] = env
	}
}
