package models

import "time"

// ChangeSet é a unidade de persistência: todos os registros alterados por uma operação do ledger.
// Também serve de snapshot completo ao carregar o estado salvo.
type ChangeSet struct {
	Assets      []Asset
	Holdings    []Holding
	Claims      []ClaimRecord
	Accruals    []IncomeAccrual
	Proposals   []Proposal
	Votes       []Vote
	Settlements []Settlement
	Applied     []AppliedEnvelope
}

// AppliedEnvelope registra que o envelope de digest dado já produziu sua mutação. É gravado no
// mesmo ChangeSet da mutação, então sobrevive a reinícios.
type AppliedEnvelope struct {
	Digest         string     `json:"digest"`
	AssetID        string     `json:"asset_id"`
	Kind           IntentKind `json:"kind"`
	ConfirmationID string     `json:"confirmation_id"`
	AppliedAt      time.Time  `json:"applied_at"`
}

// Empty informa se não há nada a persistir.
func (c ChangeSet) Empty() bool {
	return len(c.Assets) == 0 && len(c.Holdings) == 0 && len(c.Claims) == 0 &&
		len(c.Accruals) == 0 && len(c.Proposals) == 0 && len(c.Votes) == 0 && len(c.Settlements) == 0 && len(c.Applied) == 0
}
