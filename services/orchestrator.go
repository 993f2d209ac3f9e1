package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/codec"
	"github.com/ferreirogomes/cotas/ledger"
	"github.com/ferreirogomes/cotas/models"
	"github.com/ferreirogomes/cotas/signer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// proposalNamespace deriva IDs de proposta do digest do envelope que as criou.
var proposalNamespace = uuid.MustParse("6f1c3f5e-3c1a-4a53-9a6e-2f4b7d0c8e11")

// Options controla o orquestrador.
type Options struct {
	SubmitTimeout time.Duration
}

// Prepared é um envelope pronto para ser assinado por uma carteira no navegador.
type Prepared struct {
	Intent   models.Intent   `json:"intent"`
	Envelope models.Envelope `json:"envelope"`
	Payload  string          `json:"payload"` // base64
	Digest   string          `json:"digest"`
	Quote    *models.Quote   `json:"quote,omitempty"`
}

// Result é o efeito de uma ação aplicada no ledger.
type Result struct {
	Intent       models.Intent         `json:"intent"`
	Digest       string                `json:"digest"`
	Confirmation models.Confirmation   `json:"confirmation"`
	Holding      *models.Holding       `json:"holding,omitempty"`
	Claimed      uint64                `json:"claimed,omitempty"`
	Accrual      *models.IncomeAccrual `json:"accrual,omitempty"`
	Proposal     *models.Proposal      `json:"proposal,omitempty"`
	Vote         *models.Vote          `json:"vote,omitempty"`
	Settlement   *models.Settlement    `json:"settlement,omitempty"`
}

// Orchestrator conduz cada ação por montar, assinar, submeter e aplicar. O ledger só muda depois
// que a rede aceitou a transação; qualquer falha antes disso deixa o estado intacto.
type Orchestrator struct {
	own     *ledger.OwnershipLedger
	income  *ledger.IncomeDistributor
	gov     *ledger.GovernanceEngine
	bridge  *signer.Bridge
	network Network
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{} // digests submetidos e ainda não aplicados
}

// NewOrchestrator cria o orquestrador. bridge pode ser nil quando só o fluxo prepare/complete
// é usado.
func NewOrchestrator(own *ledger.OwnershipLedger, income *ledger.IncomeDistributor, gov *ledger.GovernanceEngine,
	bridge *signer.Bridge, network Network, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		own:     own,
		income:  income,
		gov:     gov,
		bridge:  bridge,
		network: network,
		opts:    opts,
		logger:  logger,
		inflight: make(map[string]struct{}),
	}
}

// Perform executa a ação com o assinante do servidor.
func (o *Orchestrator) Perform(ctx context.Context, intent models.Intent) (Result, error) {
	if o.bridge == nil {
		return Result{}, apperrors.Newf(apperrors.ErrConnectionRejected, "nenhum assinante configurado no servidor")
	}
	prepared, err := o.Prepare(ctx, intent)
	if err != nil {
		return Result{}, err
	}
	payload, err := codec.DecodeBase64(prepared.Payload)
	if err != nil {
		return Result{}, err
	}
	if err := o.guard(prepared.Digest); err != nil {
		return Result{}, err
	}

	signed, err := o.bridge.Sign(ctx, payload)
	if err != nil {
		o.logger.Warn("ação não assinada", zap.String("kind", string(intent.Kind)), zap.Error(err))
		return Result{}, err
	}
	if !bytes.Equal(signed.Payload, payload) {
		return Result{}, apperrors.Newf(apperrors.ErrSignatureMismatch, "assinante devolveu um payload diferente do enviado")
	}
	if err := o.checkSignature(prepared.Envelope, signed); err != nil {
		return Result{}, err
	}
	return o.submitAndApply(ctx, prepared.Intent, prepared.Digest, signed)
}

// Prepare valida a intenção e devolve o envelope canônico para assinatura.
func (o *Orchestrator) Prepare(ctx context.Context, intent models.Intent) (Prepared, error) {
	intent, quote, err := o.preflight(intent)
	if err != nil {
		return Prepared{}, err
	}
	params, err := o.network.Params(ctx)
	if err != nil {
		return Prepared{}, fmt.Errorf("falha ao obter parâmetros da rede: %w", err)
	}
	env, err := codec.Build(intent, params)
	if err != nil {
		return Prepared{}, err
	}
	payload, err := codec.Encode(env)
	if err != nil {
		return Prepared{}, err
	}
	return Prepared{
		Intent:   intent,
		Envelope: env,
		Payload:  codec.EncodeBase64(payload),
		Digest:   codec.Digest(payload),
		Quote:    quote,
	}, nil
}

// Complete recebe o envelope assinado pela carteira do usuário, confere que ele corresponde à
// intenção e segue com a submissão.
func (o *Orchestrator) Complete(ctx context.Context, intent models.Intent, signed models.SignedEnvelope) (Result, error) {
	env, err := codec.Decode(signed.Payload)
	if err != nil {
		return Result{}, err
	}
	intent, _, err = o.preflight(intent)
	if err != nil {
		return Result{}, err
	}
	params, err := o.network.Params(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("falha ao obter parâmetros da rede: %w", err)
	}
	if params.FirstValid > env.LastValid {
		return Result{}, apperrors.Newf(apperrors.ErrEnvelopeExpired, "envelope válido até a rodada %d, rede em %d", env.LastValid, params.FirstValid)
	}

	// Remontar com o cabeçalho do próprio envelope prova que ele descreve esta intenção,
	// nesta rede, para esta custódia.
	params.FirstValid = env.FirstValid
	params.ValidityWindow = env.LastValid - env.FirstValid
	want, err := codec.Build(intent, params)
	if err != nil || want != env {
		return Result{}, apperrors.Newf(apperrors.ErrInvalidIntent, "envelope assinado não corresponde à intenção")
	}
	if err := o.checkSignature(env, signed); err != nil {
		return Result{}, err
	}

	digest := codec.Digest(signed.Payload)
	if err := o.guard(digest); err != nil {
		return Result{}, err
	}
	return o.submitAndApply(ctx, intent, digest, signed)
}

func (o *Orchestrator) checkSignature(env models.Envelope, signed models.SignedEnvelope) error {
	if signed.Signer != env.Sender {
		return apperrors.Newf(apperrors.ErrSignatureMismatch, "envelope de %s assinado por %s", env.Sender, signed.Signer)
	}
	return signer.Verify(signed)
}

// guard recusa um envelope já aplicado no ledger ou ainda em processamento. A recusa definitiva
// fica com o ledger, que grava o digest junto com a mutação.
func (o *Orchestrator) guard(digest string) error {
	if o.own.Applied(digest) {
		return apperrors.Newf(apperrors.ErrAlreadyApplied, "envelope %s já foi aplicado", digest)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[digest]; busy {
		return apperrors.Newf(apperrors.ErrAlreadyApplied, "envelope %s já está sendo processado", digest)
	}
	return nil
}

func (o *Orchestrator) submitAndApply(ctx context.Context, intent models.Intent, digest string, signed models.SignedEnvelope) (Result, error) {
	if err := o.acquire(digest); err != nil {
		return Result{}, err
	}

	submitCtx := ctx
	if o.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, o.opts.SubmitTimeout)
		defer cancel()
	}
	conf, err := o.network.Submit(submitCtx, signed)
	if err != nil {
		o.release(digest)
		err = networkError(submitCtx, err)
		o.logger.Warn("rede recusou a ação", zap.String("kind", string(intent.Kind)), zap.String("digest", digest), zap.Error(err))
		return Result{}, err
	}

	applied := models.AppliedEnvelope{Digest: digest, AssetID: intent.AssetID, Kind: intent.Kind, ConfirmationID: conf.ID}
	res, err := o.apply(ledger.WithEnvelope(ctx, applied), intent, digest)
	if errors.Is(err, apperrors.ErrAlreadyApplied) {
		o.release(digest)
		return Result{}, err
	}
	if err != nil {
		// A rede já aceitou; o ledger precisa ser reconciliado manualmente. O digest fica
		// retido para que o mesmo envelope não seja submetido de novo.
		o.logger.Error("ERRO: transação aceita pela rede, mas não aplicada no ledger",
			zap.String("confirmation", conf.ID),
			zap.String("digest", digest),
			zap.String("kind", string(intent.Kind)),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("transação %s aceita, mas falha ao aplicar no ledger: %w", conf.ID, err)
	}
	o.release(digest)
	res.Intent = intent
	res.Digest = digest
	res.Confirmation = conf

	o.logger.Info("ação aplicada", zap.String("kind", string(intent.Kind)), zap.String("confirmation", conf.ID))
	return res, nil
}

// acquire reserva o digest para uma única submissão em andamento.
func (o *Orchestrator) acquire(digest string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[digest]; busy || o.own.Applied(digest) {
		return apperrors.Newf(apperrors.ErrAlreadyApplied, "envelope %s já foi processado", digest)
	}
	o.inflight[digest] = struct{}{}
	return nil
}

func (o *Orchestrator) release(digest string) {
	o.mu.Lock()
	delete(o.inflight, digest)
	o.mu.Unlock()
}

func networkError(ctx context.Context, err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.ErrSubmitTimeout, err)
	}
	return apperrors.Wrap(apperrors.ErrNetworkRejected, err)
}

// preflight confere a intenção contra o estado atual sem alterá-lo, para falhar antes de pedir
// assinatura, e completa os campos derivados (valor da compra, ativo da proposta).
func (o *Orchestrator) preflight(intent models.Intent) (models.Intent, *models.Quote, error) {
	if err := codec.Validate(intent); err != nil {
		return intent, nil, err
	}

	switch intent.Kind {
	case models.IntentBuy:
		asset, err := o.own.Asset(intent.AssetID)
		if err != nil {
			return intent, nil, err
		}
		if asset.State != models.AssetActive {
			return intent, nil, apperrors.Newf(apperrors.ErrNotPurchasable, "ativo %s está em %s", asset.ID, asset.State)
		}
		if intent.Units > asset.AvailableUnits() {
			return intent, nil, apperrors.Newf(apperrors.ErrOversold, "ativo %s: pedidas %d, disponíveis %d", asset.ID, intent.Units, asset.AvailableUnits())
		}
		q, err := o.own.Quote(intent.AssetID, intent.Units)
		if err != nil {
			return intent, nil, err
		}
		if intent.Amount != 0 && intent.Amount != q.Total {
			return intent, nil, apperrors.Newf(apperrors.ErrInvalidAmount, "valor %d difere da cotação %d", intent.Amount, q.Total)
		}
		intent.Amount = q.Total
		return intent, &q, nil

	case models.IntentClaimIncome:
		amount, err := o.income.ClaimableAmount(intent.AssetID, intent.HolderID)
		if err != nil {
			return intent, nil, err
		}
		if amount == 0 {
			return intent, nil, apperrors.Newf(apperrors.ErrNothingToClaim, "nada a resgatar no ativo %s", intent.AssetID)
		}

	case models.IntentDepositIncome:
		asset, err := o.own.Asset(intent.AssetID)
		if err != nil {
			return intent, nil, err
		}
		if asset.State != models.AssetActive && asset.State != models.AssetFullyAllocated {
			return intent, nil, apperrors.Newf(apperrors.ErrNotDistributable, "ativo %s está em %s", asset.ID, asset.State)
		}

	case models.IntentCreateProposal:
		h, err := o.own.Holding(intent.AssetID, intent.HolderID)
		if err != nil {
			return intent, nil, err
		}
		if h.Units == 0 {
			return intent, nil, apperrors.Newf(apperrors.ErrNotHolder, "proponente %s não detém unidades do ativo %s", intent.HolderID, intent.AssetID)
		}

	case models.IntentCastVote:
		p, err := o.gov.Proposal(intent.ProposalID)
		if err != nil {
			return intent, nil, err
		}
		if intent.AssetID == "" {
			intent.AssetID = p.AssetID
		}
		if intent.AssetID != p.AssetID {
			return intent, nil, apperrors.Newf(apperrors.ErrInvalidIntent, "proposta %s é do ativo %s", p.ID, p.AssetID)
		}
		if _, voted := o.gov.Vote(p.ID, intent.HolderID); voted {
			return intent, nil, apperrors.Newf(apperrors.ErrAlreadyVoted, "detentor %s já votou na proposta %s", intent.HolderID, p.ID)
		}
		if p.Status != models.ProposalActive {
			return intent, nil, apperrors.Newf(apperrors.ErrVotingClosed, "proposta %s está em %s", p.ID, p.Status)
		}

	case models.IntentExecuteSale:
		p, err := o.gov.Proposal(intent.ProposalID)
		if err != nil {
			return intent, nil, err
		}
		if intent.AssetID == "" {
			intent.AssetID = p.AssetID
		}
		if intent.AssetID != p.AssetID {
			return intent, nil, apperrors.Newf(apperrors.ErrInvalidIntent, "proposta %s é do ativo %s", p.ID, p.AssetID)
		}
		if p.Type != models.ProposalSell || p.Status != models.ProposalPassed {
			return intent, nil, apperrors.Newf(apperrors.ErrProposalNotPassed, "proposta %s (%s) não autoriza venda", p.ID, p.Status)
		}
		if intent.Amount != p.ProposedValue {
			return intent, nil, apperrors.Newf(apperrors.ErrInvalidAmount, "pagamento %d difere do preço aprovado %d", intent.Amount, p.ProposedValue)
		}
	}
	return intent, nil, nil
}

// apply executa a mutação do ledger correspondente à intenção.
func (o *Orchestrator) apply(ctx context.Context, intent models.Intent, digest string) (Result, error) {
	var res Result
	switch intent.Kind {
	case models.IntentBuy:
		h, err := o.own.RecordPurchase(ctx, intent.AssetID, intent.HolderID, intent.Units)
		if err != nil {
			return res, err
		}
		res.Holding = &h

	case models.IntentClaimIncome:
		amount, err := o.income.Claim(ctx, intent.AssetID, intent.HolderID)
		if err != nil {
			return res, err
		}
		res.Claimed = amount

	case models.IntentDepositIncome:
		acc, err := o.income.DepositIncome(ctx, intent.AssetID, intent.Amount)
		if err != nil {
			return res, err
		}
		res.Accrual = &acc

	case models.IntentCreateProposal:
		p, err := o.gov.CreateProposal(ctx, models.ProposalSpec{
			ID:            ProposalID(digest),
			AssetID:       intent.AssetID,
			ProposerID:    intent.HolderID,
			Type:          intent.ProposalType,
			Description:   intent.Description,
			ProposedValue: intent.ProposedValue,
			VotingWindow:  intent.VotingWindow,
		})
		if err != nil {
			return res, err
		}
		res.Proposal = &p

	case models.IntentCastVote:
		v, err := o.gov.CastVote(ctx, intent.ProposalID, intent.HolderID, intent.Direction)
		if err != nil {
			return res, err
		}
		res.Vote = &v

	case models.IntentExecuteSale:
		s, err := o.gov.SettleSale(ctx, intent.ProposalID, intent.HolderID, intent.Amount)
		if err != nil {
			return res, err
		}
		res.Settlement = &s
	}
	return res, nil
}

// ProposalID é o ID da proposta criada pelo envelope de digest dado. Reenvios do mesmo envelope
// chegam sempre à mesma proposta.
func ProposalID(digest string) string {
	return uuid.NewSHA1(proposalNamespace, []byte(digest)).String()
}

// Leituras e operações administrativas, sem assinatura.

func (o *Orchestrator) ListAsset(ctx context.Context, spec models.AssetSpec) (models.Asset, error) {
	return o.own.ListAsset(ctx, spec)
}

func (o *Orchestrator) TransitionAsset(ctx context.Context, id string, to models.AssetState) (models.Asset, error) {
	return o.own.TransitionAsset(ctx, id, to)
}

// ApplyVerdict repassa o veredito terminal do oráculo de verificação.
func (o *Orchestrator) ApplyVerdict(ctx context.Context, id string, verdict models.Verdict) (models.Asset, error) {
	return o.own.ApplyVerdict(ctx, id, verdict)
}

func (o *Orchestrator) Asset(id string) (models.Asset, error) {
	return o.own.Asset(id)
}

func (o *Orchestrator) Assets() []models.Asset {
	return o.own.Assets()
}

func (o *Orchestrator) Quote(assetID string, units uint64) (models.Quote, error) {
	return o.own.Quote(assetID, units)
}

// Holding junta posição, renda resgatada, renda disponível e percentual de participação.
func (o *Orchestrator) Holding(assetID, holderID string) (models.HoldingView, error) {
	h, err := o.own.Holding(assetID, holderID)
	if err != nil {
		return models.HoldingView{}, err
	}
	claimable, err := o.income.ClaimableAmount(assetID, holderID)
	if err != nil {
		return models.HoldingView{}, err
	}
	pct, err := o.own.OwnershipPercent(assetID, holderID)
	if err != nil {
		return models.HoldingView{}, err
	}
	rec, _ := o.income.ClaimRecord(assetID, holderID)
	return models.HoldingView{Holding: h, Claimed: rec.Claimed, Claimable: claimable, Ownership: pct}, nil
}

func (o *Orchestrator) Holdings(assetID string) ([]models.Holding, error) {
	if _, err := o.own.Asset(assetID); err != nil {
		return nil, err
	}
	return o.own.Holdings(assetID), nil
}

func (o *Orchestrator) ClaimableAmount(assetID, holderID string) (uint64, error) {
	return o.income.ClaimableAmount(assetID, holderID)
}

func (o *Orchestrator) Accrual(assetID string) (models.IncomeAccrual, error) {
	return o.income.Accrual(assetID)
}

func (o *Orchestrator) FlagMissedDeposit(ctx context.Context, assetID string) (models.IncomeAccrual, error) {
	return o.income.FlagMissedDeposit(ctx, assetID)
}

func (o *Orchestrator) Proposal(id string) (models.Proposal, error) {
	return o.gov.Proposal(id)
}

func (o *Orchestrator) Proposals(assetID string) ([]models.Proposal, error) {
	if _, err := o.own.Asset(assetID); err != nil {
		return nil, err
	}
	return o.gov.Proposals(assetID), nil
}

func (o *Orchestrator) Finalize(ctx context.Context, proposalID string) (models.Proposal, error) {
	return o.gov.Finalize(ctx, proposalID)
}

func (o *Orchestrator) MarkExecuted(ctx context.Context, proposalID string) (models.Proposal, error) {
	return o.gov.MarkExecuted(ctx, proposalID)
}

// RecordResolution anexa à proposta encerrada o CID da ata gerada fora do sistema.
func (o *Orchestrator) RecordResolution(ctx context.Context, proposalID, documentCID string) (models.Proposal, error) {
	return o.gov.RecordResolution(ctx, proposalID, documentCID)
}

func (o *Orchestrator) Settlement(assetID string) (models.Settlement, bool) {
	return o.gov.Settlement(assetID)
}
