package signer_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/signer"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type walletFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// fakeWallet simula o relay da carteira: aprova conexões e decide cada assinatura com decide.
type fakeWallet struct {
	key     solana.PrivateKey
	decide  func(payload []byte) string // "sign", "reject", "ignore" ou "drop"
	refuse  bool
	cancels chan string
}

func (w *fakeWallet) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var f walletFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case "wallet.connect":
			if w.refuse {
				_ = conn.WriteJSON(walletFrame{Type: "wallet.rejected", RequestID: f.RequestID, Payload: json.RawMessage(`{"reason":"usuário fechou o popup"}`)})
				continue
			}
			body, _ := json.Marshal(map[string]string{"address": w.key.PublicKey().String()})
			_ = conn.WriteJSON(walletFrame{Type: "wallet.connected", RequestID: f.RequestID, Payload: body})
		case "wallet.sign":
			var req struct {
				Payload string `json:"payload"`
			}
			_ = json.Unmarshal(f.Payload, &req)
			payload, _ := base64.StdEncoding.DecodeString(req.Payload)
			switch w.decide(payload) {
			case "sign":
				sig, _ := w.key.Sign(payload)
				body, _ := json.Marshal(map[string]string{"signature": sig.String()})
				_ = conn.WriteJSON(walletFrame{Type: "wallet.signed", RequestID: f.RequestID, Payload: body})
			case "reject":
				_ = conn.WriteJSON(walletFrame{Type: "wallet.rejected", RequestID: f.RequestID, Payload: json.RawMessage(`{"reason":"recusado"}`)})
			case "drop":
				return
			}
		case "wallet.cancel":
			if w.cancels != nil {
				w.cancels <- f.RequestID
			}
		case "wallet.disconnect":
			return
		}
	}
}

func startWallet(t *testing.T, w *fakeWallet) string {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	w.key = key
	srv := httptest.NewServer(w)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestRemoteSignerApprovedSignature(t *testing.T) {
	w := &fakeWallet{decide: func([]byte) string { return "sign" }}
	s := signer.NewRemoteSigner(startWallet(t, w), "cotas", nil)
	ctx := context.Background()

	h, err := s.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, w.key.PublicKey().String(), h.Address)

	signed, err := s.RequestSignature(ctx, h, []byte("envelope canônico"))
	require.NoError(t, err)
	assert.Equal(t, h.Address, signed.Signer)
	assert.NoError(t, signer.Verify(signed))

	assert.NoError(t, s.Disconnect(ctx, h))
	_, err = s.RequestSignature(ctx, h, []byte("x"))
	assert.ErrorIs(t, err, apperrors.ErrConnectionRejected)
}

func TestRemoteSignerUserRejects(t *testing.T) {
	w := &fakeWallet{decide: func([]byte) string { return "reject" }}
	s := signer.NewRemoteSigner(startWallet(t, w), "cotas", nil)
	ctx := context.Background()
	h, err := s.Connect(ctx)
	require.NoError(t, err)

	_, err = s.RequestSignature(ctx, h, []byte("envelope"))

	assert.ErrorIs(t, err, apperrors.ErrSigningRejected)
}

func TestRemoteSignerConnectionRefused(t *testing.T) {
	w := &fakeWallet{refuse: true}
	s := signer.NewRemoteSigner(startWallet(t, w), "cotas", nil)

	_, err := s.Connect(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrConnectionRejected)
}

func TestRemoteSignerTimeoutSendsCancel(t *testing.T) {
	w := &fakeWallet{decide: func([]byte) string { return "ignore" }, cancels: make(chan string, 1)}
	s := signer.NewRemoteSigner(startWallet(t, w), "cotas", nil)
	h, err := s.Connect(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.RequestSignature(ctx, h, []byte("envelope"))

	assert.ErrorIs(t, err, apperrors.ErrSigningTimeout)
	select {
	case id := <-w.cancels:
		assert.NotEmpty(t, id)
	case <-time.After(2 * time.Second):
		t.Fatal("carteira não recebeu o cancelamento")
	}
}

func TestRemoteSignerUnreachable(t *testing.T) {
	s := signer.NewRemoteSigner("ws://127.0.0.1:1/relay", "cotas", nil)

	_, err := s.Connect(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrConnectionRejected)
}

func TestRemoteSignerDroppedSocketIsConnectionFailure(t *testing.T) {
	w := &fakeWallet{decide: func([]byte) string { return "drop" }}
	s := signer.NewRemoteSigner(startWallet(t, w), "cotas", nil)
	ctx := context.Background()
	h, err := s.Connect(ctx)
	require.NoError(t, err)

	_, err = s.RequestSignature(ctx, h, []byte("envelope"))

	assert.ErrorIs(t, err, apperrors.ErrConnectionRejected)
	assert.NotErrorIs(t, err, apperrors.ErrSigningRejected)
}

func TestBridgeReconnectsAfterWalletDrop(t *testing.T) {
	var signs atomic.Int32
	w := &fakeWallet{decide: func([]byte) string {
		if signs.Add(1) == 1 {
			return "drop"
		}
		return "sign"
	}}
	b := signer.NewBridge(signer.NewRemoteSigner(startWallet(t, w), "cotas", nil), signer.Options{}, nil)
	ctx := context.Background()

	_, err := b.Sign(ctx, []byte("primeiro"))
	require.ErrorIs(t, err, apperrors.ErrConnectionRejected)
	_, ok := b.Address()
	assert.False(t, ok, "sessão caída é descartada")

	for i := 0; i < 3; i++ {
		signed, err := b.Sign(ctx, []byte("seguinte"))
		require.NoError(t, err)
		assert.NoError(t, signer.Verify(signed))
	}
	assert.Equal(t, int32(4), signs.Load())
}
