package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
)

// normalizeCID valida um CID IPFS e devolve a forma canônica. Vazio continua vazio.
func normalizeCID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("CID inválido %q: %w", s, err)
	}
	return c.String(), nil
}

// RecordResolution guarda o CID da ata gerada depois que a votação terminou. Gravar de novo
// substitui a ata anterior.
func (g *GovernanceEngine) RecordResolution(ctx context.Context, proposalID, documentCID string) (models.Proposal, error) {
	normalized, err := normalizeCID(documentCID)
	if err != nil {
		return models.Proposal{}, apperrors.Wrap(apperrors.ErrInvalidSpec, err)
	}
	if normalized == "" {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrInvalidSpec, "CID da ata é obrigatório")
	}
	p, err := g.Proposal(proposalID)
	if err != nil {
		return models.Proposal{}, err
	}

	unlock := g.own.locks.Lock(p.AssetID)
	defer unlock()

	if p, err = g.Proposal(proposalID); err != nil {
		return models.Proposal{}, err
	}
	if !p.Status.Terminal() {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrTooEarly, "proposta %s ainda está em votação", proposalID)
	}
	p.ResolutionCID = normalized

	if err := g.own.commit(ctx, models.ChangeSet{Proposals: []models.Proposal{p}}); err != nil {
		return models.Proposal{}, fmt.Errorf("falha ao persistir ata: %w", err)
	}
	g.putProposal(p)

	g.logger.Info("ata registrada", zap.String("proposal_id", proposalID), zap.String("cid", normalized))
	return p, nil
}
