package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// IntentKind identifica a ação que o usuário quer executar.
type IntentKind string

const (
	IntentBuy            IntentKind = "buy"
	IntentClaimIncome    IntentKind = "claim_income"
	IntentDepositIncome  IntentKind = "deposit_income"
	IntentCreateProposal IntentKind = "create_proposal"
	IntentCastVote       IntentKind = "cast_vote"
	IntentExecuteSale    IntentKind = "execute_sale"
)

// Valid informa se o tipo de intenção é conhecido.
func (k IntentKind) Valid() bool {
	switch k {
	case IntentBuy, IntentClaimIncome, IntentDepositIncome, IntentCreateProposal, IntentCastVote, IntentExecuteSale:
		return true
	}
	return false
}

// Payment informa se a intenção movimenta fundos do remetente para a custódia.
func (k IntentKind) Payment() bool {
	return k == IntentBuy || k == IntentDepositIncome || k == IntentExecuteSale
}

// Intent é uma ação abstrata com os parâmetros necessários para montar a transação.
// HolderID é a carteira de quem age e é também o remetente do envelope. Em JSON, voting_window
// vai em segundos, como no envelope.
type Intent struct {
	Kind          IntentKind    `json:"kind"`
	AssetID       string        `json:"asset_id,omitempty"`
	HolderID      string        `json:"holder_id"`
	Units         uint64        `json:"units,omitempty"`
	Amount        uint64        `json:"amount,omitempty"`
	ProposalID    string        `json:"proposal_id,omitempty"`
	Direction     VoteDirection `json:"direction,omitempty"`
	ProposalType  ProposalType  `json:"proposal_type,omitempty"`
	Description   string        `json:"description,omitempty"`
	ProposedValue uint64        `json:"proposed_value,omitempty"`
	VotingWindow  time.Duration `json:"voting_window,omitempty"`
}

// intentFields tem os campos de Intent sem os métodos de JSON.
type intentFields Intent

func (i Intent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		intentFields
		VotingWindow uint64 `json:"voting_window,omitempty"`
	}{intentFields(i), uint64(i.VotingWindow / time.Second)})
}

// UnmarshalJSON recusa campos desconhecidos e janelas que não cabem em time.Duration.
func (i *Intent) UnmarshalJSON(data []byte) error {
	aux := struct {
		*intentFields
		VotingWindow uint64 `json:"voting_window,omitempty"`
	}{intentFields: (*intentFields)(i)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	if aux.VotingWindow > uint64(math.MaxInt64/int64(time.Second)) {
		return fmt.Errorf("janela de votação de %d segundos é longa demais", aux.VotingWindow)
	}
	i.VotingWindow = time.Duration(aux.VotingWindow) * time.Second
	return nil
}

// NetworkParams são os parâmetros sugeridos pela rede de liquidação.
type NetworkParams struct {
	GenesisID      string `json:"genesis_id"`
	FirstValid     uint64 `json:"first_valid"`
	ValidityWindow uint64 `json:"validity_window"`
	Fee            uint64 `json:"fee"`
	Escrow         string `json:"escrow"` // Conta que recebe os pagamentos
}

// EnvelopeVersion é a versão atual do formato binário do envelope.
const EnvelopeVersion = 1

// Envelope é a forma canônica (não assinada) de uma intenção para a rede.
type Envelope struct {
	Version       uint64        `cbor:"1,keyasint" json:"version"`
	GenesisID     string        `cbor:"2,keyasint" json:"genesis_id"`
	Kind          IntentKind    `cbor:"3,keyasint" json:"kind"`
	Sender        string        `cbor:"4,keyasint" json:"sender"`
	Receiver      string        `cbor:"5,keyasint,omitempty" json:"receiver,omitempty"`
	Amount        uint64        `cbor:"6,keyasint,omitempty" json:"amount,omitempty"`
	Fee           uint64        `cbor:"7,keyasint" json:"fee"`
	FirstValid    uint64        `cbor:"8,keyasint" json:"first_valid"`
	LastValid     uint64        `cbor:"9,keyasint" json:"last_valid"`
	Note          string        `cbor:"10,keyasint,omitempty" json:"note,omitempty"`
	AssetID       string        `cbor:"11,keyasint,omitempty" json:"asset_id,omitempty"`
	Units         uint64        `cbor:"12,keyasint,omitempty" json:"units,omitempty"`
	ProposalID    string        `cbor:"13,keyasint,omitempty" json:"proposal_id,omitempty"`
	Direction     VoteDirection `cbor:"14,keyasint,omitempty" json:"direction,omitempty"`
	ProposalType  ProposalType  `cbor:"15,keyasint,omitempty" json:"proposal_type,omitempty"`
	Description   string        `cbor:"16,keyasint,omitempty" json:"description,omitempty"`
	ProposedValue uint64        `cbor:"17,keyasint,omitempty" json:"proposed_value,omitempty"`
	VotingWindow  uint64        `cbor:"18,keyasint,omitempty" json:"voting_window,omitempty"` // Segundos
}

// Intent reconstrói a intenção que originou o envelope.
func (e Envelope) Intent() Intent {
	return Intent{
		Kind:          e.Kind,
		AssetID:       e.AssetID,
		HolderID:      e.Sender,
		Units:         e.Units,
		Amount:        e.Amount,
		ProposalID:    e.ProposalID,
		Direction:     e.Direction,
		ProposalType:  e.ProposalType,
		Description:   e.Description,
		ProposedValue: e.ProposedValue,
		VotingWindow:  time.Duration(e.VotingWindow) * time.Second,
	}
}

// SignedEnvelope é o payload autorizado devolvido pelo assinante, opaco para o ledger.
type SignedEnvelope struct {
	Payload   []byte `json:"payload"`   // Bytes exatos do envelope codificado
	Signature []byte `json:"signature"` // ed25519, 64 bytes
	Signer    string `json:"signer"`    // Chave pública base58 de quem assinou
}

// Confirmation é a resposta da rede para uma submissão aceita.
type Confirmation struct {
	ID          string    `json:"id"`
	Round       uint64    `json:"round"`
	SubmittedAt time.Time `json:"submitted_at"`
}
