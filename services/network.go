package services

import (
	"context"
	"sync"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/codec"
	"github.com/ferreirogomes/cotas/models"
	"github.com/ferreirogomes/cotas/signer"

	"github.com/andres-erbsen/clock"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Network é a rede de liquidação: sugere parâmetros e aceita envelopes assinados.
type Network interface {
	Params(ctx context.Context) (models.NetworkParams, error)
	Submit(ctx context.Context, signed models.SignedEnvelope) (models.Confirmation, error)
}

// checkEnvelope aplica as regras que qualquer rede impõe a um envelope assinado: assinatura
// válida do remetente, forma canônica, mesma rede e rodada dentro da janela.
func checkEnvelope(signed models.SignedEnvelope, genesis string, round uint64) (models.Envelope, error) {
	if err := signer.Verify(signed); err != nil {
		return models.Envelope{}, apperrors.Wrap(apperrors.ErrNetworkRejected, err)
	}
	env, err := codec.Decode(signed.Payload)
	if err != nil {
		return models.Envelope{}, apperrors.Wrap(apperrors.ErrNetworkRejected, err)
	}
	if env.Sender != signed.Signer {
		return models.Envelope{}, apperrors.Newf(apperrors.ErrNetworkRejected, "envelope de %s assinado por %s", env.Sender, signed.Signer)
	}
	if env.GenesisID != genesis {
		return models.Envelope{}, apperrors.Newf(apperrors.ErrNetworkRejected, "envelope da rede %s", env.GenesisID)
	}
	if round < env.FirstValid || round > env.LastValid {
		return models.Envelope{}, apperrors.Newf(apperrors.ErrNetworkRejected, "rodada %d fora da validade [%d, %d]", round, env.FirstValid, env.LastValid)
	}
	return env, nil
}

// LoopbackNetwork é uma rede em processo para desenvolvimento e testes. Cada submissão aceita
// avança uma rodada.
type LoopbackNetwork struct {
	params models.NetworkParams
	clock  clock.Clock
	logger *zap.Logger

	mu     sync.Mutex
	round  uint64
	seen   map[string]bool
	reject string
}

// NewLoopbackNetwork cria a rede local a partir dos parâmetros base; FirstValid é a rodada inicial.
func NewLoopbackNetwork(params models.NetworkParams, clk clock.Clock, logger *zap.Logger) *LoopbackNetwork {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopbackNetwork{
		params: params,
		clock:  clk,
		logger: logger,
		round:  params.FirstValid,
		seen:   make(map[string]bool),
	}
}

// RejectWith faz a rede recusar as próximas submissões com o motivo dado; vazio volta a aceitar.
func (n *LoopbackNetwork) RejectWith(reason string) {
	n.mu.Lock()
	n.reject = reason
	n.mu.Unlock()
}

// Advance pula rodadas, para simular o tempo passando.
func (n *LoopbackNetwork) Advance(rounds uint64) {
	n.mu.Lock()
	n.round += rounds
	n.mu.Unlock()
}

func (n *LoopbackNetwork) Params(ctx context.Context) (models.NetworkParams, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p := n.params
	p.FirstValid = n.round
	return p, ctx.Err()
}

func (n *LoopbackNetwork) Submit(ctx context.Context, signed models.SignedEnvelope) (models.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return models.Confirmation{}, apperrors.Wrap(apperrors.ErrSubmitTimeout, err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.reject != "" {
		return models.Confirmation{}, apperrors.Newf(apperrors.ErrNetworkRejected, "rede recusou: %s", n.reject)
	}
	if _, err := checkEnvelope(signed, n.params.GenesisID, n.round); err != nil {
		return models.Confirmation{}, err
	}
	digest := codec.Digest(signed.Payload)
	if n.seen[digest] {
		return models.Confirmation{}, apperrors.Newf(apperrors.ErrNetworkRejected, "envelope %s já submetido", digest)
	}
	n.seen[digest] = true
	n.round++

	conf := models.Confirmation{
		ID:          solana.SignatureFromBytes(signed.Signature).String(),
		Round:       n.round,
		SubmittedAt: n.clock.Now(),
	}
	n.logger.Debug("envelope aceito", zap.String("confirmation", conf.ID), zap.Uint64("round", conf.Round))
	return conf, nil
}
