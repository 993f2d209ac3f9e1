// Package signer faz a ponte com quem autoriza as ações: uma carteira remota que aprova cada
// pedido fora de banda, ou uma chave local para desenvolvimento. Nunca toca no estado do ledger.
package signer

import (
	"context"
	"crypto/ed25519"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"

	"github.com/gagliardetto/solana-go"
)

// Handle identifica uma sessão aberta com o assinante.
type Handle struct {
	Address string // Chave pública base58 da conta que assina
	Session string
}

// Signer é a capacidade de assinatura. RequestSignature pode bloquear até o usuário decidir.
type Signer interface {
	Connect(ctx context.Context) (Handle, error)
	RequestSignature(ctx context.Context, h Handle, payload []byte) (models.SignedEnvelope, error)
	Disconnect(ctx context.Context, h Handle) error
}

// Verify confere a assinatura ed25519 sobre os bytes exatos do payload.
func Verify(signed models.SignedEnvelope) error {
	pub, err := solana.PublicKeyFromBase58(signed.Signer)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSignatureMismatch, err)
	}
	if len(signed.Signature) != ed25519.SignatureSize {
		return apperrors.Newf(apperrors.ErrSignatureMismatch, "assinatura com %d bytes", len(signed.Signature))
	}
	var sig solana.Signature
	copy(sig[:], signed.Signature)
	if !sig.Verify(pub, signed.Payload) {
		return apperrors.Newf(apperrors.ErrSignatureMismatch, "assinatura de %s não confere com o payload", signed.Signer)
	}
	return nil
}
