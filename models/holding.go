package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding é o saldo de unidades de um detentor em um ativo.
// Único por (AssetID, HolderID); nunca é apagado, mesmo com zero unidades.
type Holding struct {
	AssetID   string    `json:"asset_id"`
	HolderID  string    `json:"holder_id"` // Endereço da carteira do detentor
	Units     uint64    `json:"units"`
	Invested  uint64    `json:"invested"` // Total pago (custo + prêmio)
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClaimRecord é o cursor de resgate de renda de um detentor, mantido pelo distribuidor.
type ClaimRecord struct {
	AssetID     string    `json:"asset_id"`
	HolderID    string    `json:"holder_id"`
	LastIndex   uint64    `json:"last_index"` // Índice de distribuição no último resgate/checkpoint
	Pending     uint64    `json:"pending"`    // Renda escalada já apurada e ainda não paga
	Claimed     uint64    `json:"claimed"`    // Acumulado resgatado, só aumenta
	LastClaimAt time.Time `json:"last_claim_at"`
}

// HoldingView junta a posição e o histórico de renda para leitura.
type HoldingView struct {
	Holding
	Claimed   uint64          `json:"claimed"`
	Claimable uint64          `json:"claimable"`
	Ownership decimal.Decimal `json:"ownership_percent"`
}
