package signer

import (
	"context"
	"fmt"

	"github.com/ferreirogomes/cotas/models"

	"github.com/gagliardetto/solana-go"
)

// LocalSigner assina na hora com uma chave em memória. Só para desenvolvimento e testes.
type LocalSigner struct {
	key solana.PrivateKey
}

// NewLocalSigner cria o assinante local.
func NewLocalSigner(key solana.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key}
}

// NewLocalSignerFromBase58 carrega a chave no formato exportado pelas carteiras Solana.
func NewLocalSignerFromBase58(secret string) (*LocalSigner, error) {
	key, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("chave privada inválida: %w", err)
	}
	return NewLocalSigner(key), nil
}

// Address devolve a chave pública base58.
func (s *LocalSigner) Address() string {
	return s.key.PublicKey().String()
}

func (s *LocalSigner) Connect(ctx context.Context) (Handle, error) {
	return Handle{Address: s.Address(), Session: "local"}, ctx.Err()
}

func (s *LocalSigner) RequestSignature(ctx context.Context, _ Handle, payload []byte) (models.SignedEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return models.SignedEnvelope{}, err
	}
	sig, err := s.key.Sign(payload)
	if err != nil {
		return models.SignedEnvelope{}, fmt.Errorf("falha ao assinar payload: %w", err)
	}
	return models.SignedEnvelope{
		Payload:   append([]byte(nil), payload...),
		Signature: sig[:],
		Signer:    s.Address(),
	}, nil
}

func (s *LocalSigner) Disconnect(context.Context, Handle) error { return nil }
