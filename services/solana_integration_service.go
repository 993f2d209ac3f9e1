package services

import (
	"context"
	"fmt"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/blockchain_listener"
	"github.com/ferreirogomes/cotas/codec"
	"github.com/ferreirogomes/cotas/models"

	"github.com/andres-erbsen/clock"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// MemoProgramID é o programa Memo v2 da Solana.
var MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// SolanaRPC é o pedaço do rpc.Client usado pela integração.
type SolanaRPC interface {
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetGenesisHash(ctx context.Context) (solana.Hash, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// Confirmer espera a finalização de uma transação.
type Confirmer interface {
	WaitFinalized(ctx context.Context, sig solana.Signature) (blockchain_listener.Finalized, error)
}

// SolanaOptions são os parâmetros que a integração sugere aos envelopes.
type SolanaOptions struct {
	ValidityWindow uint64 // Em slots
	Fee            uint64
	Escrow         string // Vazio usa a conta do FeePayer
}

// SolanaIntegrationService ancora envelopes assinados na Solana: cada envelope aceito vira uma
// instrução Memo paga e assinada pelo FeePayer, e a confirmação é a finalização dessa transação.
type SolanaIntegrationService struct {
	RPCClient SolanaRPC
	FeePayer  solana.PrivateKey
	listener  Confirmer
	opts      SolanaOptions
	clock     clock.Clock
	logger    *zap.Logger
}

// NewSolanaIntegrationService cria a integração sobre um cliente RPC já configurado.
func NewSolanaIntegrationService(client SolanaRPC, feePayer solana.PrivateKey, listener Confirmer, opts SolanaOptions, logger *zap.Logger) *SolanaIntegrationService {
	if opts.Escrow == "" {
		opts.Escrow = feePayer.PublicKey().String()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolanaIntegrationService{
		RPCClient: client,
		FeePayer:  feePayer,
		listener:  listener,
		opts:      opts,
		clock:     clock.New(),
		logger:    logger,
	}
}

// Params usa o slot finalizado atual como primeira rodada válida.
func (s *SolanaIntegrationService) Params(ctx context.Context) (models.NetworkParams, error) {
	slot, err := s.RPCClient.GetSlot(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return models.NetworkParams{}, fmt.Errorf("falha ao obter slot: %w", err)
	}
	genesis, err := s.RPCClient.GetGenesisHash(ctx)
	if err != nil {
		return models.NetworkParams{}, fmt.Errorf("falha ao obter genesis: %w", err)
	}
	return models.NetworkParams{
		GenesisID:      genesis.String(),
		FirstValid:     slot,
		ValidityWindow: s.opts.ValidityWindow,
		Fee:            s.opts.Fee,
		Escrow:         s.opts.Escrow,
	}, nil
}

// Submit confere o envelope, envia a transação de memo e espera a finalização.
func (s *SolanaIntegrationService) Submit(ctx context.Context, signed models.SignedEnvelope) (models.Confirmation, error) {
	params, err := s.Params(ctx)
	if err != nil {
		return models.Confirmation{}, apperrors.Wrap(apperrors.ErrNetworkRejected, err)
	}
	env, err := checkEnvelope(signed, params.GenesisID, params.FirstValid)
	if err != nil {
		return models.Confirmation{}, err
	}

	tx, err := s.memoTransaction(ctx, memoText(env, signed))
	if err != nil {
		return models.Confirmation{}, apperrors.Wrap(apperrors.ErrNetworkRejected, err)
	}
	txID, err := s.RPCClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.Confirmation{}, apperrors.Wrap(apperrors.ErrSubmitTimeout, err)
		}
		return models.Confirmation{}, apperrors.Wrap(apperrors.ErrNetworkRejected, fmt.Errorf("falha ao enviar transação: %w", err))
	}
	submittedAt := s.clock.Now()
	s.logger.Info("transação enviada", zap.String("signature", txID.String()), zap.String("kind", string(env.Kind)))

	fin, err := s.listener.WaitFinalized(ctx, txID)
	if err != nil {
		return models.Confirmation{}, err
	}
	s.logger.Info("envelope ancorado", zap.Stringer("tx", fin))
	return models.Confirmation{ID: txID.String(), Round: fin.Slot, SubmittedAt: submittedAt}, nil
}

// memoTransaction monta e assina pelo FeePayer a transação com o memo.
func (s *SolanaIntegrationService) memoTransaction(ctx context.Context, memo string) (*solana.Transaction, error) {
	resp, err := s.RPCClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("falha ao obter blockhash: %w", err)
	}

	memoInstruction := solana.NewInstruction(MemoProgramID, solana.AccountMetaSlice{}, []byte(memo))
	tx, err := solana.NewTransaction(
		[]solana.Instruction{memoInstruction},
		resp.Value.Blockhash,
		solana.TransactionPayer(s.FeePayer.PublicKey()),
	)
	if err != nil {
		return nil, fmt.Errorf("falha ao criar transação de memo: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.FeePayer.PublicKey()) {
			return &s.FeePayer
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("falha ao assinar transação pelo FeePayer: %w", err)
	}
	return tx, nil
}

// memoText é o que fica registrado on-chain: a nota, o digest do envelope, quem assinou e a
// assinatura, o suficiente para auditar o envelope original.
func memoText(env models.Envelope, signed models.SignedEnvelope) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		env.Note,
		codec.Digest(signed.Payload),
		signed.Signer,
		solana.SignatureFromBytes(signed.Signature),
	)
}

// WithClock troca o relógio usado nas confirmações.
func (s *SolanaIntegrationService) WithClock(clk clock.Clock) *SolanaIntegrationService {
	s.clock = clk
	return s
}
