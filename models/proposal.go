package models

import "time"

// ProposalType é o tipo de decisão submetida a votação.
type ProposalType string

const (
	ProposalSell       ProposalType = "sell"
	ProposalRenovate   ProposalType = "renovate"
	ProposalChangeRent ProposalType = "change_rent"
)

// Valid informa se o tipo é conhecido.
func (t ProposalType) Valid() bool {
	switch t {
	case ProposalSell, ProposalRenovate, ProposalChangeRent:
		return true
	}
	return false
}

// ProposalStatus é o estado de uma proposta.
type ProposalStatus string

const (
	ProposalActive   ProposalStatus = "active"
	ProposalPassed   ProposalStatus = "passed"
	ProposalFailed   ProposalStatus = "failed"
	ProposalExecuted ProposalStatus = "executed"
)

// Terminal informa se a votação da proposta já foi encerrada.
func (s ProposalStatus) Terminal() bool {
	return s != ProposalActive
}

// QuorumPercent é a fração mínima (em %) das unidades totais que precisa votar.
const QuorumPercent = 51

// VoteDirection é o sentido de um voto.
type VoteDirection string

const (
	VoteYes VoteDirection = "yes"
	VoteNo  VoteDirection = "no"
)

// Valid informa se a direção é conhecida.
func (d VoteDirection) Valid() bool {
	return d == VoteYes || d == VoteNo
}

// Proposal é uma proposta de governança ponderada por unidades, restrita a um ativo.
type Proposal struct {
	ID            string         `json:"id"`
	AssetID       string         `json:"asset_id"`
	ProposerID    string         `json:"proposer_id"`
	Type          ProposalType   `json:"type"`
	Description   string         `json:"description"`
	ProposedValue uint64         `json:"proposed_value"` // Preço de venda, orçamento ou novo aluguel
	TotalUnits    uint64         `json:"total_units"`    // Unidades totais do ativo na criação
	CreatedAt     time.Time      `json:"created_at"`
	Deadline      time.Time      `json:"deadline"`
	YesWeight     uint64         `json:"yes_weight"`
	NoWeight      uint64         `json:"no_weight"`
	Status        ProposalStatus `json:"status"`
	ExecutedAt    time.Time      `json:"executed_at,omitempty"`
	ResolutionCID string         `json:"resolution_cid,omitempty"` // CID IPFS da ata com o resultado
}

// ProposalSpec são os dados de entrada para criar uma proposta.
type ProposalSpec struct {
	ID            string        `json:"id,omitempty"`
	AssetID       string        `json:"asset_id"`
	ProposerID    string        `json:"proposer_id"`
	Type          ProposalType  `json:"type"`
	Description   string        `json:"description"`
	ProposedValue uint64        `json:"proposed_value"`
	VotingWindow  time.Duration `json:"voting_window"`
}

// Vote é o único voto de um detentor em uma proposta.
type Vote struct {
	ProposalID string        `json:"proposal_id"`
	HolderID   string        `json:"holder_id"`
	Direction  VoteDirection `json:"direction"`
	Weight     uint64        `json:"weight"` // Unidades no momento do voto
	CastAt     time.Time     `json:"cast_at"`
}

// Payout é a parte de um detentor nos recursos de uma venda.
type Payout struct {
	HolderID string `json:"holder_id"`
	Amount   uint64 `json:"amount"`
}

// Settlement registra a liquidação de um ativo vendido por decisão de governança.
type Settlement struct {
	AssetID     string    `json:"asset_id"`
	ProposalID  string    `json:"proposal_id"`
	BuyerID     string    `json:"buyer_id"`
	SalePrice   uint64    `json:"sale_price"`
	Payouts     []Payout  `json:"payouts"`
	IssuerShare uint64    `json:"issuer_share"` // Parte das unidades não vendidas mais o resto da divisão
	SettledAt   time.Time `json:"settled_at"`
}
