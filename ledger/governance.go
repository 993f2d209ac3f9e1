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
	"go.uber.org/zap"
)

// GovernanceEngine é o dono exclusivo de Proposal e Vote. O peso de cada voto é a posição do
// detentor no momento do voto; compras posteriores não alteram votos já dados.
type GovernanceEngine struct {
	own    *OwnershipLedger
	clock  clock.Clock
	logger *zap.Logger

	mu          sync.RWMutex
	proposals   map[string]models.Proposal
	votes       map[string]map[string]models.Vote // proposta -> detentor -> voto
	settlements map[string]models.Settlement      // ativo -> liquidação
}

// NewGovernanceEngine cria o motor de governança sobre o ledger de posições.
func NewGovernanceEngine(own *OwnershipLedger, logger *zap.Logger) *GovernanceEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GovernanceEngine{
		own:         own,
		clock:       own.clock,
		logger:      logger,
		proposals:   make(map[string]models.Proposal),
		votes:       make(map[string]map[string]models.Vote),
		settlements: make(map[string]models.Settlement),
	}
}

// CreateProposal abre uma proposta; o proponente precisa deter ao menos uma unidade.
func (g *GovernanceEngine) CreateProposal(ctx context.Context, spec models.ProposalSpec) (models.Proposal, error) {
	if !spec.Type.Valid() {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrInvalidIntent, "tipo de proposta desconhecido: %q", spec.Type)
	}
	if spec.VotingWindow <= 0 {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrInvalidIntent, "janela de votação deve ser positiva")
	}
	if strings.TrimSpace(spec.Description) == "" {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrInvalidIntent, "descrição é obrigatória")
	}

	unlock := g.own.locks.Lock(spec.AssetID)
	defer unlock()

	if err := g.own.checkEnvelope(ctx, spec.AssetID); err != nil {
		return models.Proposal{}, err
	}
	asset, err := g.own.Asset(spec.AssetID)
	if err != nil {
		return models.Proposal{}, err
	}
	if asset.State != models.AssetActive && asset.State != models.AssetFullyAllocated {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrInvalidTransition, "ativo %s não aceita propostas em %s", asset.ID, asset.State)
	}
	if h, _ := g.own.holding(spec.AssetID, spec.ProposerID); h.Units < 1 {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrNotHolder, "proponente %s não detém unidades do ativo %s", spec.ProposerID, spec.AssetID)
	}

	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = uuid.New().String()
	}
	if _, err := g.Proposal(id); err == nil {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrAlreadyApplied, "proposta %s já existe", id)
	}

	now := g.clock.Now()
	p := models.Proposal{
		ID:            id,
		AssetID:       spec.AssetID,
		ProposerID:    spec.ProposerID,
		Type:          spec.Type,
		Description:   spec.Description,
		ProposedValue: spec.ProposedValue,
		TotalUnits:    asset.TotalUnits,
		CreatedAt:     now,
		Deadline:      now.Add(spec.VotingWindow),
		Status:        models.ProposalActive,
	}
	if err := g.own.commit(ctx, models.ChangeSet{Proposals: []models.Proposal{p}}); err != nil {
		return models.Proposal{}, fmt.Errorf("falha ao persistir proposta: %w", err)
	}
	g.putProposal(p)

	g.logger.Info("proposta criada", zap.String("proposal_id", id), zap.String("asset_id", p.AssetID), zap.String("type", string(p.Type)), zap.Time("deadline", p.Deadline))
	return p, nil
}

// CastVote registra o único voto do detentor na proposta.
func (g *GovernanceEngine) CastVote(ctx context.Context, proposalID, holderID string, direction models.VoteDirection) (models.Vote, error) {
	if !direction.Valid() {
		return models.Vote{}, apperrors.Newf(apperrors.ErrInvalidIntent, "direção de voto desconhecida: %q", direction)
	}
	p, err := g.Proposal(proposalID)
	if err != nil {
		return models.Vote{}, err
	}

	unlock := g.own.locks.Lock(p.AssetID)
	defer unlock()

	// Relido sob o cadeado: outro voto pode ter entrado entre a leitura e o bloqueio.
	if p, err = g.Proposal(proposalID); err != nil {
		return models.Vote{}, err
	}
	if err := g.own.checkEnvelope(ctx, p.AssetID); err != nil {
		return models.Vote{}, err
	}
	if _, voted := g.vote(proposalID, holderID); voted {
		return models.Vote{}, apperrors.Newf(apperrors.ErrAlreadyVoted, "detentor %s já votou na proposta %s", holderID, proposalID)
	}
	now := g.clock.Now()
	if p.Status != models.ProposalActive || !now.Before(p.Deadline) {
		return models.Vote{}, apperrors.Newf(apperrors.ErrVotingClosed, "votação da proposta %s encerrada em %s", proposalID, p.Deadline.Format("2006-01-02 15:04:05"))
	}
	h, _ := g.own.holding(p.AssetID, holderID)
	if h.Units < 1 {
		return models.Vote{}, apperrors.Newf(apperrors.ErrNotHolder, "detentor %s não detém unidades do ativo %s", holderID, p.AssetID)
	}
	if p.YesWeight+p.NoWeight+h.Units > p.TotalUnits {
		return models.Vote{}, apperrors.Newf(apperrors.ErrInvalidUnits, "peso total dos votos excederia %d unidades", p.TotalUnits)
	}

	v := models.Vote{ProposalID: proposalID, HolderID: holderID, Direction: direction, Weight: h.Units, CastAt: now}
	if direction == models.VoteYes {
		p.YesWeight += h.Units
	} else {
		p.NoWeight += h.Units
	}

	cs := models.ChangeSet{Proposals: []models.Proposal{p}, Votes: []models.Vote{v}}
	if err := g.own.commit(ctx, cs); err != nil {
		return models.Vote{}, fmt.Errorf("falha ao persistir voto: %w", err)
	}
	g.mu.Lock()
	g.proposals[p.ID] = p
	if g.votes[p.ID] == nil {
		g.votes[p.ID] = make(map[string]models.Vote)
	}
	g.votes[p.ID][holderID] = v
	g.mu.Unlock()

	g.logger.Info("voto registrado", zap.String("proposal_id", proposalID), zap.String("holder_id", holderID), zap.String("direction", string(direction)), zap.Uint64("weight", v.Weight))
	return v, nil
}

// Finalize encerra a votação depois do prazo. Aprova quando votaram ao menos 51% das unidades
// totais e o sim supera o não. Chamar de novo numa proposta encerrada não faz nada.
func (g *GovernanceEngine) Finalize(ctx context.Context, proposalID string) (models.Proposal, error) {
	p, err := g.Proposal(proposalID)
	if err != nil {
		return models.Proposal{}, err
	}

	unlock := g.own.locks.Lock(p.AssetID)
	defer unlock()

	if p, err = g.Proposal(proposalID); err != nil {
		return models.Proposal{}, err
	}
	if p.Status.Terminal() {
		return p, nil
	}
	if g.clock.Now().Before(p.Deadline) {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrTooEarly, "votação da proposta %s termina em %s", proposalID, p.Deadline.Format("2006-01-02 15:04:05"))
	}

	p.Status = outcome(p)
	if err := g.own.commit(ctx, models.ChangeSet{Proposals: []models.Proposal{p}}); err != nil {
		return models.Proposal{}, fmt.Errorf("falha ao persistir resultado: %w", err)
	}
	g.putProposal(p)

	g.logger.Info("proposta finalizada", zap.String("proposal_id", proposalID), zap.String("status", string(p.Status)), zap.Uint64("yes", p.YesWeight), zap.Uint64("no", p.NoWeight))
	return p, nil
}

func outcome(p models.Proposal) models.ProposalStatus {
	turnout := p.YesWeight + p.NoWeight
	// turnout/total ≥ 51/100 sem divisão.
	quorum := productAtLeast(turnout, 100, p.TotalUnits, models.QuorumPercent)
	if quorum && p.YesWeight > p.NoWeight {
		return models.ProposalPassed
	}
	return models.ProposalFailed
}

// MarkExecuted marca uma proposta aprovada como executada. Propostas de venda só são executadas
// por SettleSale, que também liquida o ativo.
func (g *GovernanceEngine) MarkExecuted(ctx context.Context, proposalID string) (models.Proposal, error) {
	p, err := g.Proposal(proposalID)
	if err != nil {
		return models.Proposal{}, err
	}

	unlock := g.own.locks.Lock(p.AssetID)
	defer unlock()

	if p, err = g.Proposal(proposalID); err != nil {
		return models.Proposal{}, err
	}
	if p.Status != models.ProposalPassed {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrProposalNotPassed, "proposta %s está em %s", proposalID, p.Status)
	}
	if p.Type == models.ProposalSell {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrInvalidTransition, "proposta de venda %s é executada pela liquidação da venda", proposalID)
	}
	p.Status = models.ProposalExecuted
	p.ExecutedAt = g.clock.Now()

	if err := g.own.commit(ctx, models.ChangeSet{Proposals: []models.Proposal{p}}); err != nil {
		return models.Proposal{}, fmt.Errorf("falha ao persistir execução: %w", err)
	}
	g.putProposal(p)
	return p, nil
}

// AuthorizedSale devolve a proposta de venda aprovada e ainda não executada mais recente do ativo.
func (g *GovernanceEngine) AuthorizedSale(assetID string) (models.Proposal, bool) {
	var latest models.Proposal
	found := false
	for _, p := range g.Proposals(assetID) {
		if p.Type == models.ProposalSell && p.Status == models.ProposalPassed {
			if !found || p.CreatedAt.After(latest.CreatedAt) {
				latest, found = p, true
			}
		}
	}
	return latest, found
}

// Proposal devolve uma cópia da proposta.
func (g *GovernanceEngine) Proposal(id string) (models.Proposal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.proposals[id]
	if !ok {
		return models.Proposal{}, apperrors.Newf(apperrors.ErrNotFound, "proposta %s não encontrada", id)
	}
	return p, nil
}

// Proposals lista as propostas de um ativo, das mais antigas para as mais novas.
func (g *GovernanceEngine) Proposals(assetID string) []models.Proposal {
	g.mu.RLock()
	var out []models.Proposal
	for _, p := range g.proposals {
		if p.AssetID == assetID {
			out = append(out, p)
		}
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Vote devolve o voto do detentor na proposta, se houver.
func (g *GovernanceEngine) Vote(proposalID, holderID string) (models.Vote, bool) {
	return g.vote(proposalID, holderID)
}

func (g *GovernanceEngine) vote(proposalID, holderID string) (models.Vote, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.votes[proposalID][holderID]
	return v, ok
}

// Settlement devolve a liquidação do ativo, se ele foi vendido.
func (g *GovernanceEngine) Settlement(assetID string) (models.Settlement, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.settlements[assetID]
	return s, ok
}

func (g *GovernanceEngine) putProposal(p models.Proposal) {
	g.mu.Lock()
	g.proposals[p.ID] = p
	g.mu.Unlock()
}

// Restore carrega propostas, votos e liquidações de um snapshot persistido.
func (g *GovernanceEngine) Restore(snapshot models.ChangeSet) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range snapshot.Proposals {
		g.proposals[p.ID] = p
	}
	for _, v := range snapshot.Votes {
		if g.votes[v.ProposalID] == nil {
			g.votes[v.ProposalID] = make(map[string]models.Vote)
		}
		g.votes[v.ProposalID][v.HolderID] = v
	}
	for _, s := range snapshot.Settlements {
		g.settlements[s.AssetID] = s
	}
}
