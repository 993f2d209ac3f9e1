package signer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"

	"go.uber.org/zap"
)

// Options controla os prazos do Bridge. Zero significa sem prazo próprio além do contexto.
type Options struct {
	ConnectTimeout time.Duration
	SignTimeout    time.Duration
}

// Bridge é dono de um único Signer, guarda a sessão conectada e aplica os prazos.
type Bridge struct {
	signer Signer
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	handle *Handle
}

// NewBridge cria a ponte para o assinante.
func NewBridge(s Signer, opts Options, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{signer: s, opts: opts, logger: logger}
}

// Connect abre a sessão ou devolve a que já está aberta.
func (b *Bridge) Connect(ctx context.Context) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle != nil {
		return *b.handle, nil
	}

	if b.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.ConnectTimeout)
		defer cancel()
	}
	h, err := b.signer.Connect(ctx)
	if err != nil {
		return Handle{}, classify(ctx, err, apperrors.ErrConnectionTimeout, apperrors.ErrConnectionRejected, apperrors.ErrConnectionRejected)
	}
	b.handle = &h
	return h, nil
}

// Sign pede a assinatura do payload. Se o pedido expirar, for cancelado ou a sessão cair,
// a sessão é descartada e o próximo pedido reconecta.
func (b *Bridge) Sign(ctx context.Context, payload []byte) (models.SignedEnvelope, error) {
	h, err := b.Connect(ctx)
	if err != nil {
		return models.SignedEnvelope{}, err
	}

	if b.opts.SignTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.SignTimeout)
		defer cancel()
	}
	signed, err := b.signer.RequestSignature(ctx, h, payload)
	if err != nil {
		err = classify(ctx, err, apperrors.ErrSigningTimeout, apperrors.ErrSigningCancelled, apperrors.ErrSigningRejected)
		if sessionEnded(err) {
			b.forget(h)
		}
		b.logger.Warn("assinatura não obtida", zap.String("address", h.Address), zap.Error(err))
		return models.SignedEnvelope{}, err
	}
	return signed, nil
}

// Address devolve a conta da sessão aberta, se houver.
func (b *Bridge) Address() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle == nil {
		return "", false
	}
	return b.handle.Address, true
}

// Disconnect encerra a sessão aberta.
func (b *Bridge) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	h := b.handle
	b.handle = nil
	b.mu.Unlock()
	if h == nil {
		return nil
	}
	return b.signer.Disconnect(ctx, *h)
}

func (b *Bridge) forget(h Handle) {
	b.mu.Lock()
	if b.handle != nil && b.handle.Session == h.Session {
		b.handle = nil
	}
	b.mu.Unlock()
	_ = b.signer.Disconnect(context.Background(), h)
}

// sessionEnded diz se o erro deixou a sessão inutilizável. Uma recusa do usuário mantém a
// sessão aberta.
func sessionEnded(err error) bool {
	switch apperrors.CodeOf(err) {
	case apperrors.CodeSigningTimeout, apperrors.CodeSigningCancelled, apperrors.CodeConnectionRejected:
		return true
	}
	return false
}

// classify garante que todo erro do assinante saia como rejeição externa.
func classify(ctx context.Context, err error, timeout, cancelled, rejected *apperrors.Error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Wrap(timeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrap(cancelled, err)
	}
	return apperrors.Wrap(rejected, err)
}
