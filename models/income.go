package models

import "time"

// IncomeScale é o fator de ponto fixo do índice de distribuição.
const IncomeScale = 1_000_000

// DepositPeriod é a cadência esperada entre depósitos de renda (um trimestre).
const DepositPeriod = 90 * 24 * time.Hour

// IncomeAccrual acumula a renda depositada de um ativo.
type IncomeAccrual struct {
	AssetID           string    `json:"asset_id"`
	TotalDeposited    uint64    `json:"total_deposited"`
	Index             uint64    `json:"index"`     // Renda acumulada por unidade, escalada por IncomeScale
	Remainder         uint64    `json:"remainder"` // Resto da divisão inteira levado ao próximo depósito
	DepositCount      uint64    `json:"deposit_count"`
	LastDepositAmount uint64    `json:"last_deposit_amount"`
	LastDepositAt     time.Time `json:"last_deposit_at"`
	NextDepositDue    time.Time `json:"next_deposit_due"`
	MissedDeposits    uint64    `json:"missed_deposits"`
}
