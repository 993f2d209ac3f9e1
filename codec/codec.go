// Package codec converte intenções em envelopes canônicos e de volta.
//
// A forma binária é um mapa CBOR com chaves inteiras na codificação determinística do RFC 8949
// (chaves ordenadas, inteiros na forma mais curta, comprimentos definidos). Entradas que não estão
// nessa forma são rejeitadas, nunca normalizadas: o que foi assinado é exatamente o que se decodifica.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ferreirogomes/cotas/apperrors"
	"github.com/ferreirogomes/cotas/models"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(fmt.Sprintf("codec: modo de codificação inválido: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		IndefLength:       cbor.IndefLengthForbidden,
		TagsMd:            cbor.TagsForbidden,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("codec: modo de decodificação inválido: %v", err))
	}
}

// Build monta o envelope de uma intenção. É determinístico: a mesma intenção com os mesmos
// parâmetros produz sempre o mesmo envelope.
func Build(intent models.Intent, params models.NetworkParams) (models.Envelope, error) {
	if err := Validate(intent); err != nil {
		return models.Envelope{}, err
	}
	if params.GenesisID == "" {
		return models.Envelope{}, apperrors.Newf(apperrors.ErrInvalidIntent, "parâmetros de rede sem genesis")
	}
	if params.ValidityWindow == 0 {
		return models.Envelope{}, apperrors.Newf(apperrors.ErrInvalidIntent, "janela de validade deve ser positiva")
	}
	lastValid := params.FirstValid + params.ValidityWindow
	if lastValid < params.FirstValid {
		return models.Envelope{}, apperrors.Newf(apperrors.ErrOverflow, "janela de validade estoura a rodada")
	}

	env := models.Envelope{
		Version:       models.EnvelopeVersion,
		GenesisID:     params.GenesisID,
		Kind:          intent.Kind,
		Sender:        intent.HolderID,
		Amount:        intent.Amount,
		Fee:           params.Fee,
		FirstValid:    params.FirstValid,
		LastValid:     lastValid,
		Note:          Memo(intent),
		AssetID:       intent.AssetID,
		Units:         intent.Units,
		ProposalID:    intent.ProposalID,
		Direction:     intent.Direction,
		ProposalType:  intent.ProposalType,
		Description:   intent.Description,
		ProposedValue: intent.ProposedValue,
		VotingWindow:  uint64(intent.VotingWindow / time.Second),
	}
	if intent.Kind.Payment() {
		if params.Escrow == "" {
			return models.Envelope{}, apperrors.Newf(apperrors.ErrInvalidIntent, "conta de custódia não configurada")
		}
		env.Receiver = params.Escrow
	}
	return env, nil
}

// Validate confere os campos exigidos por cada tipo de intenção.
func Validate(intent models.Intent) error {
	if !intent.Kind.Valid() {
		return apperrors.Newf(apperrors.ErrInvalidIntent, "tipo de intenção desconhecido: %q", intent.Kind)
	}
	if strings.TrimSpace(intent.HolderID) == "" {
		return apperrors.Newf(apperrors.ErrInvalidIntent, "carteira do detentor é obrigatória")
	}
	if intent.VotingWindow%time.Second != 0 || intent.VotingWindow < 0 {
		return apperrors.Newf(apperrors.ErrInvalidIntent, "janela de votação deve ser um número inteiro de segundos")
	}

	switch intent.Kind {
	case models.IntentBuy:
		if intent.AssetID == "" || intent.Units == 0 {
			return apperrors.Newf(apperrors.ErrInvalidIntent, "compra exige ativo e unidades")
		}
	case models.IntentClaimIncome:
		if intent.AssetID == "" {
			return apperrors.Newf(apperrors.ErrInvalidIntent, "resgate exige ativo")
		}
	case models.IntentDepositIncome:
		if intent.AssetID == "" || intent.Amount == 0 {
			return apperrors.Newf(apperrors.ErrInvalidIntent, "depósito exige ativo e valor")
		}
	case models.IntentCreateProposal:
		if intent.AssetID == "" || !intent.ProposalType.Valid() || strings.TrimSpace(intent.Description) == "" || intent.VotingWindow <= 0 {
			return apperrors.Newf(apperrors.ErrInvalidIntent, "proposta exige ativo, tipo, descrição e janela de votação")
		}
	case models.IntentCastVote:
		if intent.ProposalID == "" || !intent.Direction.Valid() {
			return apperrors.Newf(apperrors.ErrInvalidIntent, "voto exige proposta e direção")
		}
	case models.IntentExecuteSale:
		if intent.ProposalID == "" || intent.Amount == 0 {
			return apperrors.Newf(apperrors.ErrInvalidIntent, "venda exige proposta e valor")
		}
	}
	return nil
}

// Memo descreve a ação em texto para o campo de nota da transação.
func Memo(intent models.Intent) string {
	switch intent.Kind {
	case models.IntentBuy:
		return fmt.Sprintf("cotas: comprar %d unidades do ativo %s", intent.Units, intent.AssetID)
	case models.IntentClaimIncome:
		return fmt.Sprintf("cotas: resgatar renda do ativo %s", intent.AssetID)
	case models.IntentDepositIncome:
		return fmt.Sprintf("cotas: depositar %d de renda no ativo %s", intent.Amount, intent.AssetID)
	case models.IntentCreateProposal:
		return fmt.Sprintf("cotas: propor %s no ativo %s", intent.ProposalType, intent.AssetID)
	case models.IntentCastVote:
		return fmt.Sprintf("cotas: votar %s na proposta %s", intent.Direction, intent.ProposalID)
	case models.IntentExecuteSale:
		return fmt.Sprintf("cotas: liquidar venda da proposta %s", intent.ProposalID)
	}
	return "cotas"
}

// Encode serializa o envelope na forma canônica.
func Encode(env models.Envelope) ([]byte, error) {
	b, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("falha ao codificar envelope: %w", err)
	}
	return b, nil
}

// Decode lê um envelope canônico. Bytes truncados ou sobrando, chaves duplicadas ou
// desconhecidas, campos obrigatórios ausentes, versão não suportada e qualquer forma não
// canônica resultam em ErrMalformedEnvelope.
func Decode(payload []byte) (models.Envelope, error) {
	if len(payload) == 0 {
		return models.Envelope{}, apperrors.Newf(apperrors.ErrMalformedEnvelope, "envelope vazio")
	}
	var env models.Envelope
	if err := decMode.Unmarshal(payload, &env); err != nil {
		return models.Envelope{}, apperrors.Wrap(apperrors.ErrMalformedEnvelope, err)
	}
	if env.Version != models.EnvelopeVersion {
		return models.Envelope{}, apperrors.Newf(apperrors.ErrMalformedEnvelope, "versão %d não suportada", env.Version)
	}
	if env.GenesisID == "" || env.LastValid < env.FirstValid {
		return models.Envelope{}, apperrors.Newf(apperrors.ErrMalformedEnvelope, "cabeçalho do envelope incompleto")
	}
	if err := Validate(env.Intent()); err != nil {
		return models.Envelope{}, apperrors.Wrap(apperrors.ErrMalformedEnvelope, err)
	}

	canonical, err := encMode.Marshal(env)
	if err != nil {
		return models.Envelope{}, apperrors.Wrap(apperrors.ErrMalformedEnvelope, err)
	}
	if !bytes.Equal(canonical, payload) {
		return models.Envelope{}, apperrors.Newf(apperrors.ErrMalformedEnvelope, "envelope fora da forma canônica")
	}
	return env, nil
}

// EncodeBase64 prepara o payload para transporte em JSON.
func EncodeBase64(payload []byte) string {
	return base64.StdEncoding.EncodeToString(payload)
}

// DecodeBase64 é o inverso de EncodeBase64.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedEnvelope, err)
	}
	return b, nil
}

// Digest identifica um payload: SHA-256 em hexadecimal.
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
