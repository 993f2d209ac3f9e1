package ledger

import (
	"context"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"
)

type envelopeKey struct{}

// WithEnvelope marca o contexto de uma mutação originada por um envelope assinado. A mutação
// recusa o envelope se o digest já foi aplicado e, se seguir, grava o digest no mesmo ChangeSet.
func WithEnvelope(ctx context.Context, env models.AppliedEnvelope) context.Context {
	return context.WithValue(ctx, envelopeKey{}, env)
}

func envelopeFrom(ctx context.Context) (models.AppliedEnvelope, bool) {
	env, ok := ctx.Value(envelopeKey{}).(models.AppliedEnvelope)
	return env, ok
}

// Applied informa se o envelope de digest dado já foi aplicado.
func (l *OwnershipLedger) Applied(digest string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.applied[digest]
	return ok
}

// checkEnvelope recusa a mutação se o envelope do contexto já foi aplicado. Deve ser chamado
// sob o cadeado do ativo do envelope.
func (l *OwnershipLedger) checkEnvelope(ctx context.Context, assetID string) error {
	env, ok := envelopeFrom(ctx)
	if !ok {
		return nil
	}
	if env.AssetID != assetID {
		return apperrors.Newf(apperrors.ErrInvalidIntent, "envelope do ativo %s aplicado ao ativo %s", env.AssetID, assetID)
	}
	if l.Applied(env.Digest) {
		return apperrors.Newf(apperrors.ErrAlreadyApplied, "envelope %s já foi aplicado", env.Digest)
	}
	return nil
}

// commit persiste o ChangeSet junto com o digest do envelope do contexto, se houver, e publica o
// digest depois que o Store confirmou.
func (l *OwnershipLedger) commit(ctx context.Context, cs models.ChangeSet) error {
	env, signed := envelopeFrom(ctx)
	if signed {
		env.AppliedAt = l.clock.Now()
		cs.Applied = append(cs.Applied, env)
	}
	if err := l.store.Commit(ctx, cs); err != nil {
		return err
	}
	if signed {
		l.mu.Lock()
		l.applied[env.Digest] = env
		l.mu.Unlock()
	}
	return nil
}

// AppliedEnvelope devolve o registro de aplicação do envelope.
func (l *OwnershipLedger) AppliedEnvelope(digest string) (models.AppliedEnvelope, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	env, ok := l.applied[digest]
	if !ok {
		return models.AppliedEnvelope{}, apperrors.Newf(apperrors.ErrNotFound, "envelope %s não foi aplicado", digest)
	}
	return env, nil
}
