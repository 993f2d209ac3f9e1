package signer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Tipos de quadro trocados com a carteira.
const (
	frameConnect    = "wallet.connect"
	frameConnected  = "wallet.connected"
	frameSign       = "wallet.sign"
	frameSigned     = "wallet.signed"
	frameRejected   = "wallet.rejected"
	frameCancel     = "wallet.cancel"
	frameDisconnect = "wallet.disconnect"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type connectPayload struct {
	App string `json:"app"`
}

type connectedPayload struct {
	Address string `json:"address"`
}

type signPayload struct {
	Payload string `json:"payload"` // base64
	Note    string `json:"note,omitempty"`
}

type signedPayload struct {
	Signature string `json:"signature"` // base58
}

type rejectedPayload struct {
	Reason string `json:"reason"`
}

type session struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	address string
}

// RemoteSigner fala com uma carteira via websocket. Cada pedido é aprovado pelo usuário na
// carteira; a resposta pode demorar o quanto ele quiser, limitada pelo contexto.
type RemoteSigner struct {
	url    string
	app    string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewRemoteSigner cria o assinante remoto para o relay da carteira em url (ws:// ou wss://).
func NewRemoteSigner(url, app string, logger *zap.Logger) *RemoteSigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteSigner{
		url:      url,
		app:      app,
		dialer:   websocket.DefaultDialer,
		logger:   logger,
		sessions: make(map[string]*session),
	}
}

func (s *RemoteSigner) Connect(ctx context.Context) (Handle, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Handle{}, apperrors.Wrap(apperrors.ErrConnectionTimeout, err)
		}
		return Handle{}, apperrors.Wrap(apperrors.ErrConnectionRejected, err)
	}
	sess := &session{conn: conn}

	reply, err := sess.exchange(ctx, frameConnect, connectPayload{App: s.app})
	if err != nil {
		_ = conn.Close()
		return Handle{}, connectError(ctx, err)
	}
	if reply.Type != frameConnected {
		_ = conn.Close()
		return Handle{}, apperrors.Newf(apperrors.ErrConnectionRejected, "carteira recusou a conexão: %s", rejection(reply))
	}
	var p connectedPayload
	if err := json.Unmarshal(reply.Payload, &p); err != nil {
		_ = conn.Close()
		return Handle{}, apperrors.Wrap(apperrors.ErrConnectionRejected, err)
	}
	if _, err := solana.PublicKeyFromBase58(p.Address); err != nil {
		_ = conn.Close()
		return Handle{}, apperrors.Wrap(apperrors.ErrConnectionRejected, err)
	}
	sess.address = p.Address

	h := Handle{Address: p.Address, Session: uuid.New().String()}
	s.mu.Lock()
	s.sessions[h.Session] = sess
	s.mu.Unlock()

	s.logger.Info("carteira conectada", zap.String("address", h.Address), zap.String("session", h.Session))
	return h, nil
}

func (s *RemoteSigner) RequestSignature(ctx context.Context, h Handle, payload []byte) (models.SignedEnvelope, error) {
	s.mu.Lock()
	sess, ok := s.sessions[h.Session]
	s.mu.Unlock()
	if !ok {
		return models.SignedEnvelope{}, apperrors.Newf(apperrors.ErrConnectionRejected, "sessão %s não está aberta", h.Session)
	}

	reply, err := sess.exchange(ctx, frameSign, signPayload{Payload: base64.StdEncoding.EncodeToString(payload)})
	if err != nil {
		// A conexão não é reaproveitável depois de uma leitura interrompida.
		s.drop(h.Session)
		return models.SignedEnvelope{}, signError(ctx, err)
	}
	switch reply.Type {
	case frameSigned:
	case frameRejected:
		return models.SignedEnvelope{}, apperrors.Newf(apperrors.ErrSigningRejected, "usuário recusou a assinatura: %s", rejection(reply))
	default:
		return models.SignedEnvelope{}, apperrors.Newf(apperrors.ErrSigningRejected, "resposta inesperada da carteira: %s", reply.Type)
	}

	var p signedPayload
	if err := json.Unmarshal(reply.Payload, &p); err != nil {
		return models.SignedEnvelope{}, apperrors.Wrap(apperrors.ErrSignatureMismatch, err)
	}
	sig, err := solana.SignatureFromBase58(p.Signature)
	if err != nil {
		return models.SignedEnvelope{}, apperrors.Wrap(apperrors.ErrSignatureMismatch, err)
	}
	return models.SignedEnvelope{
		Payload:   append([]byte(nil), payload...),
		Signature: sig[:],
		Signer:    sess.address,
	}, nil
}

func (s *RemoteSigner) Disconnect(ctx context.Context, h Handle) error {
	s.mu.Lock()
	sess, ok := s.sessions[h.Session]
	delete(s.sessions, h.Session)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = sess.conn.SetWriteDeadline(deadline)
	}
	_ = sess.conn.WriteJSON(wsFrame{Type: frameDisconnect})
	_ = sess.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err := sess.conn.Close(); err != nil {
		return fmt.Errorf("falha ao fechar sessão com a carteira: %w", err)
	}
	s.logger.Info("carteira desconectada", zap.String("session", h.Session))
	return nil
}

func (s *RemoteSigner) drop(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		_ = sess.conn.Close()
	}
}

// exchange envia um pedido e espera a resposta com o mesmo request_id. Se o contexto terminar
// antes, a carteira recebe um cancelamento e a leitura pendente é interrompida.
func (sess *session) exchange(ctx context.Context, kind string, payload any) (wsFrame, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return wsFrame{}, err
	}
	req := wsFrame{Type: kind, RequestID: uuid.New().String(), Payload: body}
	if err := sess.conn.WriteJSON(req); err != nil {
		return wsFrame{}, err
	}

	type result struct {
		frame wsFrame
		err   error
	}
	done := make(chan result, 1)
	go func() {
		for {
			var f wsFrame
			if err := sess.conn.ReadJSON(&f); err != nil {
				done <- result{err: err}
				return
			}
			if f.RequestID == req.RequestID {
				done <- result{frame: f}
				return
			}
		}
	}()

	select {
	case r := <-done:
		return r.frame, r.err
	case <-ctx.Done():
		_ = sess.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = sess.conn.WriteJSON(wsFrame{Type: frameCancel, RequestID: req.RequestID})
		_ = sess.conn.SetReadDeadline(time.Now())
		<-done
		return wsFrame{}, ctx.Err()
	}
}

func rejection(f wsFrame) string {
	var p rejectedPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil || p.Reason == "" {
		return f.Type
	}
	return p.Reason
}

func connectError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.ErrConnectionTimeout, err)
	}
	return apperrors.Wrap(apperrors.ErrConnectionRejected, err)
}

func signError(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.ErrSigningTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return apperrors.Wrap(apperrors.ErrSigningCancelled, err)
	}
	// Falha de transporte: a sessão caiu, o usuário não recusou nada.
	return apperrors.Wrap(apperrors.ErrConnectionRejected, err)
}
