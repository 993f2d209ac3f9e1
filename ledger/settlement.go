package ledger

import (
	"context"
	"fmt"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"

	"go.uber.org/zap"
)

// SettleSale liquida a venda de um ativo autorizada por uma proposta sell aprovada.
// O preço é dividido pelas unidades de cada detentor sobre o total; a parte não vendida e o resto
// da divisão ficam com o emissor. Proposta executada, ativo encerrado e liquidação vão num único
// ChangeSet.
func (g *GovernanceEngine) SettleSale(ctx context.Context, proposalID, buyerID string, price uint64) (models.Settlement, error) {
	p, err := g.Proposal(proposalID)
	if err != nil {
		return models.Settlement{}, err
	}

	unlock := g.own.locks.Lock(p.AssetID)
	defer unlock()

	if p, err = g.Proposal(proposalID); err != nil {
		return models.Settlement{}, err
	}
	if err := g.own.checkEnvelope(ctx, p.AssetID); err != nil {
		return models.Settlement{}, err
	}
	if p.Type != models.ProposalSell || p.Status != models.ProposalPassed {
		return models.Settlement{}, apperrors.Newf(apperrors.ErrProposalNotPassed, "proposta %s (%s) não autoriza venda", proposalID, p.Status)
	}
	if price != p.ProposedValue {
		return models.Settlement{}, apperrors.Newf(apperrors.ErrInvalidAmount, "pagamento %d difere do preço aprovado %d", price, p.ProposedValue)
	}

	var cs models.ChangeSet
	asset, publishAsset, err := g.own.stageAssetState(p.AssetID, models.AssetWoundUp, &cs)
	if err != nil {
		return models.Settlement{}, err
	}

	now := g.clock.Now()
	s := models.Settlement{AssetID: asset.ID, ProposalID: p.ID, BuyerID: buyerID, SalePrice: price, SettledAt: now}
	var paid uint64
	for _, h := range g.own.Holdings(asset.ID) {
		if h.Units == 0 {
			continue
		}
		amount := mulDiv(h.Units, price, asset.TotalUnits)
		s.Payouts = append(s.Payouts, models.Payout{HolderID: h.HolderID, Amount: amount})
		paid += amount
	}
	s.IssuerShare = price - paid

	p.Status = models.ProposalExecuted
	p.ExecutedAt = now
	cs.Proposals = append(cs.Proposals, p)
	cs.Settlements = append(cs.Settlements, s)
	if err := g.own.commit(ctx, cs); err != nil {
		return models.Settlement{}, fmt.Errorf("falha ao persistir liquidação: %w", err)
	}

	publishAsset()
	g.mu.Lock()
	g.proposals[p.ID] = p
	g.settlements[asset.ID] = s
	g.mu.Unlock()

	g.logger.Info("venda liquidada",
		zap.String("asset_id", asset.ID),
		zap.String("proposal_id", p.ID),
		zap.Uint64("price", price),
		zap.Int("payouts", len(s.Payouts)),
		zap.Uint64("issuer_share", s.IssuerShare),
	)
	return s, nil
}
