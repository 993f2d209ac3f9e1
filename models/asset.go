package models

import "time"

// AssetState é o estágio do ciclo de vida de um ativo fracionado.
type AssetState string

const (
	AssetPending        AssetState = "pending"
	AssetVerified       AssetState = "verified"
	AssetActive         AssetState = "active"
	AssetFullyAllocated AssetState = "fully_allocated"
	AssetWoundUp        AssetState = "wound_up"
)

// Verdict é o veredito terminal do oráculo de verificação de documentos.
type Verdict string

const (
	VerdictApproved    Verdict = "approved"
	VerdictNeedsReview Verdict = "needs_review"
	VerdictRejected    Verdict = "rejected"
)

// Valid informa se o veredito é um dos três reconhecidos.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApproved, VerdictNeedsReview, VerdictRejected:
		return true
	}
	return false
}

// InsuranceRatePerMille é o prêmio de seguro cobrado sobre o custo de cada compra (1,5%).
const InsuranceRatePerMille = 15

// Asset representa um ativo real (imóvel, por exemplo) dividido em unidades fracionadas.
type Asset struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Symbol        string     `json:"symbol"`
	OwnerID       string     `json:"owner_id"`     // Carteira do emissor (recebe a parte não vendida de uma liquidação)
	TotalUnits    uint64     `json:"total_units"`  // Fixo na criação
	SoldUnits     uint64     `json:"sold_units"`   // Só aumenta, nunca passa de TotalUnits
	UnitPrice     uint64     `json:"unit_price"`   // Menor unidade da moeda
	MinPurchase   uint64     `json:"min_purchase"` // 0 = sem limite
	MaxPurchase   uint64     `json:"max_purchase"` // 0 = sem limite
	InsurancePool uint64     `json:"insurance_pool"`
	State         AssetState `json:"state"`
	Verdict       Verdict    `json:"verdict,omitempty"`
	ArticlesCID   string     `json:"articles_cid,omitempty"` // CID IPFS do contrato social da SPE
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AvailableUnits devolve quantas unidades ainda podem ser vendidas.
func (a Asset) AvailableUnits() uint64 {
	return a.TotalUnits - a.SoldUnits
}

// AssetSpec são os dados de entrada para listar um novo ativo.
type AssetSpec struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	OwnerID     string `json:"owner_id"`
	TotalUnits  int64  `json:"total_units"`
	UnitPrice   int64  `json:"unit_price"`
	MinPurchase uint64 `json:"min_purchase,omitempty"`
	MaxPurchase uint64 `json:"max_purchase,omitempty"`
	ArticlesCID string `json:"articles_cid,omitempty"`
}

// Quote é o preço de uma compra: custo das unidades mais o prêmio de seguro.
type Quote struct {
	Units   uint64 `json:"units"`
	Cost    uint64 `json:"cost"`
	Premium uint64 `json:"premium"`
	Total   uint64 `json:"total"`
}
