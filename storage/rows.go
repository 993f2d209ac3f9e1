package storage

import (
	"database/sql"

	"github.com/ferreirogomes/cotas/models"
)

// Linhas das tabelas. Quantias e unidades ficam em BIGINT.

type assetRow struct {
	ID            string        `db:"id"`
	Name          string        `db:"name"`
	Symbol        string        `db:"symbol"`
	OwnerID       string        `db:"owner_id"`
	TotalUnits    int64         `db:"total_units"`
	SoldUnits     int64         `db:"sold_units"`
	UnitPrice     int64         `db:"unit_price"`
	MinPurchase   int64         `db:"min_purchase"`
	MaxPurchase   int64         `db:"max_purchase"`
	InsurancePool int64         `db:"insurance_pool"`
	State         string        `db:"state"`
	Verdict       string        `db:"verdict"`
	ArticlesCID   string        `db:"articles_cid"`
	CreatedAt     sql.NullInt64 `db:"created_at"`
	UpdatedAt     sql.NullInt64 `db:"updated_at"`
}

const upsertAsset = `
INSERT INTO assets (id, name, symbol, owner_id, total_units, sold_units, unit_price, min_purchase,
	max_purchase, insurance_pool, state, verdict, articles_cid, created_at, updated_at)
VALUES (:id, :name, :symbol, :owner_id, :total_units, :sold_units, :unit_price, :min_purchase,
	:max_purchase, :insurance_pool, :state, :verdict, :articles_cid, :created_at, :updated_at)
ON CONFLICT (id) DO UPDATE SET
	sold_units = excluded.sold_units,
	insurance_pool = excluded.insurance_pool,
	state = excluded.state,
	verdict = excluded.verdict,
	updated_at = excluded.updated_at`

func toAssetRow(a models.Asset) assetRow {
	return assetRow{
		ID:            a.ID,
		Name:          a.Name,
		Symbol:        a.Symbol,
		OwnerID:       a.OwnerID,
		TotalUnits:    int64(a.TotalUnits),
		SoldUnits:     int64(a.SoldUnits),
		UnitPrice:     int64(a.UnitPrice),
		MinPurchase:   int64(a.MinPurchase),
		MaxPurchase:   int64(a.MaxPurchase),
		InsurancePool: int64(a.InsurancePool),
		State:         string(a.State),
		Verdict:       string(a.Verdict),
		ArticlesCID:   a.ArticlesCID,
		CreatedAt:     nanos(a.CreatedAt),
		UpdatedAt:     nanos(a.UpdatedAt),
	}
}

func (r assetRow) model() models.Asset {
	return models.Asset{
		ID:            r.ID,
		Name:          r.Name,
		Symbol:        r.Symbol,
		OwnerID:       r.OwnerID,
		TotalUnits:    uint64(r.TotalUnits),
		SoldUnits:     uint64(r.SoldUnits),
		UnitPrice:     uint64(r.UnitPrice),
		MinPurchase:   uint64(r.MinPurchase),
		MaxPurchase:   uint64(r.MaxPurchase),
		InsurancePool: uint64(r.InsurancePool),
		State:         models.AssetState(r.State),
		Verdict:       models.Verdict(r.Verdict),
		ArticlesCID:   r.ArticlesCID,
		CreatedAt:     fromNanos(r.CreatedAt),
		UpdatedAt:     fromNanos(r.UpdatedAt),
	}
}

type holdingRow struct {
	AssetID   string        `db:"asset_id"`
	HolderID  string        `db:"holder_id"`
	Units     int64         `db:"units"`
	Invested  int64         `db:"invested"`
	CreatedAt sql.NullInt64 `db:"created_at"`
	UpdatedAt sql.NullInt64 `db:"updated_at"`
}

const upsertHolding = `
INSERT INTO holdings (asset_id, holder_id, units, invested, created_at, updated_at)
VALUES (:asset_id, :holder_id, :units, :invested, :created_at, :updated_at)
ON CONFLICT (asset_id, holder_id) DO UPDATE SET
	units = excluded.units,
	invested = excluded.invested,
	updated_at = excluded.updated_at`

func toHoldingRow(h models.Holding) holdingRow {
	return holdingRow{
		AssetID:   h.AssetID,
		HolderID:  h.HolderID,
		Units:     int64(h.Units),
		Invested:  int64(h.Invested),
		CreatedAt: nanos(h.CreatedAt),
		UpdatedAt: nanos(h.UpdatedAt),
	}
}

func (r holdingRow) model() models.Holding {
	return models.Holding{
		AssetID:   r.AssetID,
		HolderID:  r.HolderID,
		Units:     uint64(r.Units),
		Invested:  uint64(r.Invested),
		CreatedAt: fromNanos(r.CreatedAt),
		UpdatedAt: fromNanos(r.UpdatedAt),
	}
}

type claimRow struct {
	AssetID     string        `db:"asset_id"`
	HolderID    string        `db:"holder_id"`
	LastIndex   int64         `db:"last_index"`
	Pending     int64         `db:"pending"`
	Claimed     int64         `db:"claimed"`
	LastClaimAt sql.NullInt64 `db:"last_claim_at"`
}

const upsertClaim = `
INSERT INTO claims (asset_id, holder_id, last_index, pending, claimed, last_claim_at)
VALUES (:asset_id, :holder_id, :last_index, :pending, :claimed, :last_claim_at)
ON CONFLICT (asset_id, holder_id) DO UPDATE SET
	last_index = excluded.last_index,
	pending = excluded.pending,
	claimed = excluded.claimed,
	last_claim_at = excluded.last_claim_at`

func toClaimRow(c models.ClaimRecord) claimRow {
	return claimRow{
		AssetID:     c.AssetID,
		HolderID:    c.HolderID,
		LastIndex:   int64(c.LastIndex),
		Pending:     int64(c.Pending),
		Claimed:     int64(c.Claimed),
		LastClaimAt: nanos(c.LastClaimAt),
	}
}

func (r claimRow) model() models.ClaimRecord {
	return models.ClaimRecord{
		AssetID:     r.AssetID,
		HolderID:    r.HolderID,
		LastIndex:   uint64(r.LastIndex),
		Pending:     uint64(r.Pending),
		Claimed:     uint64(r.Claimed),
		LastClaimAt: fromNanos(r.LastClaimAt),
	}
}

type accrualRow struct {
	AssetID           string        `db:"asset_id"`
	TotalDeposited    int64         `db:"total_deposited"`
	Index             int64         `db:"dist_index"`
	Remainder         int64         `db:"remainder"`
	DepositCount      int64         `db:"deposit_count"`
	LastDepositAmount int64         `db:"last_deposit_amount"`
	LastDepositAt     sql.NullInt64 `db:"last_deposit_at"`
	NextDepositDue    sql.NullInt64 `db:"next_deposit_due"`
	MissedDeposits    int64         `db:"missed_deposits"`
}

const upsertAccrual = `
INSERT INTO accruals (asset_id, total_deposited, dist_index, remainder, deposit_count,
	last_deposit_amount, last_deposit_at, next_deposit_due, missed_deposits)
VALUES (:asset_id, :total_deposited, :dist_index, :remainder, :deposit_count,
	:last_deposit_amount, :last_deposit_at, :next_deposit_due, :missed_deposits)
ON CONFLICT (asset_id) DO UPDATE SET
	total_deposited = excluded.total_deposited,
	dist_index = excluded.dist_index,
	remainder = excluded.remainder,
	deposit_count = excluded.deposit_count,
	last_deposit_amount = excluded.last_deposit_amount,
	last_deposit_at = excluded.last_deposit_at,
	next_deposit_due = excluded.next_deposit_due,
	missed_deposits = excluded.missed_deposits`

func toAccrualRow(a models.IncomeAccrual) accrualRow {
	return accrualRow{
		AssetID:           a.AssetID,
		TotalDeposited:    int64(a.TotalDeposited),
		Index:             int64(a.Index),
		Remainder:         int64(a.Remainder),
		DepositCount:      int64(a.DepositCount),
		LastDepositAmount: int64(a.LastDepositAmount),
		LastDepositAt:     nanos(a.LastDepositAt),
		NextDepositDue:    nanos(a.NextDepositDue),
		MissedDeposits:    int64(a.MissedDeposits),
	}
}

func (r accrualRow) model() models.IncomeAccrual {
	return models.IncomeAccrual{
		AssetID:           r.AssetID,
		TotalDeposited:    uint64(r.TotalDeposited),
		Index:             uint64(r.Index),
		Remainder:         uint64(r.Remainder),
		DepositCount:      uint64(r.DepositCount),
		LastDepositAmount: uint64(r.LastDepositAmount),
		LastDepositAt:     fromNanos(r.LastDepositAt),
		NextDepositDue:    fromNanos(r.NextDepositDue),
		MissedDeposits:    uint64(r.MissedDeposits),
	}
}

type proposalRow struct {
	ID            string        `db:"id"`
	AssetID       string        `db:"asset_id"`
	ProposerID    string        `db:"proposer_id"`
	Type          string        `db:"type"`
	Description   string        `db:"description"`
	ProposedValue int64         `db:"proposed_value"`
	TotalUnits    int64         `db:"total_units"`
	CreatedAt     sql.NullInt64 `db:"created_at"`
	Deadline      sql.NullInt64 `db:"deadline"`
	YesWeight     int64         `db:"yes_weight"`
	NoWeight      int64         `db:"no_weight"`
	Status        string        `db:"status"`
	ExecutedAt    sql.NullInt64 `db:"executed_at"`
	ResolutionCID string        `db:"resolution_cid"`
}

const upsertProposal = `
INSERT INTO proposals (id, asset_id, proposer_id, type, description, proposed_value, total_units,
	created_at, deadline, yes_weight, no_weight, status, executed_at, resolution_cid)
VALUES (:id, :asset_id, :proposer_id, :type, :description, :proposed_value, :total_units,
	:created_at, :deadline, :yes_weight, :no_weight, :status, :executed_at, :resolution_cid)
ON CONFLICT (id) DO UPDATE SET
	yes_weight = excluded.yes_weight,
	no_weight = excluded.no_weight,
	status = excluded.status,
	executed_at = excluded.executed_at,
	resolution_cid = excluded.resolution_cid`

func toProposalRow(p models.Proposal) proposalRow {
	return proposalRow{
		ID:            p.ID,
		AssetID:       p.AssetID,
		ProposerID:    p.ProposerID,
		Type:          string(p.Type),
		Description:   p.Description,
		ProposedValue: int64(p.ProposedValue),
		TotalUnits:    int64(p.TotalUnits),
		CreatedAt:     nanos(p.CreatedAt),
		Deadline:      nanos(p.Deadline),
		YesWeight:     int64(p.YesWeight),
		NoWeight:      int64(p.NoWeight),
		Status:        string(p.Status),
		ExecutedAt:    nanos(p.ExecutedAt),
		ResolutionCID: p.ResolutionCID,
	}
}

func (r proposalRow) model() models.Proposal {
	return models.Proposal{
		ID:            r.ID,
		AssetID:       r.AssetID,
		ProposerID:    r.ProposerID,
		Type:          models.ProposalType(r.Type),
		Description:   r.Description,
		ProposedValue: uint64(r.ProposedValue),
		TotalUnits:    uint64(r.TotalUnits),
		CreatedAt:     fromNanos(r.CreatedAt),
		Deadline:      fromNanos(r.Deadline),
		YesWeight:     uint64(r.YesWeight),
		NoWeight:      uint64(r.NoWeight),
		Status:        models.ProposalStatus(r.Status),
		ExecutedAt:    fromNanos(r.ExecutedAt),
		ResolutionCID: r.ResolutionCID,
	}
}

type voteRow struct {
	ProposalID string        `db:"proposal_id"`
	HolderID   string        `db:"holder_id"`
	Direction  string        `db:"direction"`
	Weight     int64         `db:"weight"`
	CastAt     sql.NullInt64 `db:"cast_at"`
}

// Votos são imutáveis: um segundo insert do mesmo par é erro.
const insertVote = `
INSERT INTO votes (proposal_id, holder_id, direction, weight, cast_at)
VALUES (:proposal_id, :holder_id, :direction, :weight, :cast_at)`

func toVoteRow(v models.Vote) voteRow {
	return voteRow{
		ProposalID: v.ProposalID,
		HolderID:   v.HolderID,
		Direction:  string(v.Direction),
		Weight:     int64(v.Weight),
		CastAt:     nanos(v.CastAt),
	}
}

func (r voteRow) model() models.Vote {
	return models.Vote{
		ProposalID: r.ProposalID,
		HolderID:   r.HolderID,
		Direction:  models.VoteDirection(r.Direction),
		Weight:     uint64(r.Weight),
		CastAt:     fromNanos(r.CastAt),
	}
}

type settlementRow struct {
	AssetID     string        `db:"asset_id"`
	ProposalID  string        `db:"proposal_id"`
	BuyerID     string        `db:"buyer_id"`
	SalePrice   int64         `db:"sale_price"`
	IssuerShare int64         `db:"issuer_share"`
	SettledAt   sql.NullInt64 `db:"settled_at"`
}

const insertSettlement = `
INSERT INTO settlements (asset_id, proposal_id, buyer_id, sale_price, issuer_share, settled_at)
VALUES (:asset_id, :proposal_id, :buyer_id, :sale_price, :issuer_share, :settled_at)`

func toSettlementRow(s models.Settlement) settlementRow {
	return settlementRow{
		AssetID:     s.AssetID,
		ProposalID:  s.ProposalID,
		BuyerID:     s.BuyerID,
		SalePrice:   int64(s.SalePrice),
		IssuerShare: int64(s.IssuerShare),
		SettledAt:   nanos(s.SettledAt),
	}
}

func (r settlementRow) model() models.Settlement {
	return models.Settlement{
		AssetID:     r.AssetID,
		ProposalID:  r.ProposalID,
		BuyerID:     r.BuyerID,
		SalePrice:   uint64(r.SalePrice),
		IssuerShare: uint64(r.IssuerShare),
		SettledAt:   fromNanos(r.SettledAt),
	}
}

type payoutRow struct {
	AssetID  string `db:"asset_id"`
	Position int    `db:"position"`
	HolderID string `db:"holder_id"`
	Amount   int64  `db:"amount"`
}

const insertPayout = `
INSERT INTO settlement_payouts (asset_id, position, holder_id, amount)
VALUES (:asset_id, :position, :holder_id, :amount)`

type appliedRow struct {
	Digest         string        `db:"digest"`
	AssetID        string        `db:"asset_id"`
	Kind           string        `db:"kind"`
	ConfirmationID string        `db:"confirmation_id"`
	AppliedAt      sql.NullInt64 `db:"applied_at"`
}

// A chave primária no digest é a última barreira contra aplicar o mesmo envelope duas vezes.
const insertApplied = `
INSERT INTO applied_envelopes (digest, asset_id, kind, confirmation_id, applied_at)
VALUES (:digest, :asset_id, :kind, :confirmation_id, :applied_at)`

func toAppliedRow(e models.AppliedEnvelope) appliedRow {
	return appliedRow{
		Digest:         e.Digest,
		AssetID:        e.AssetID,
		Kind:           string(e.Kind),
		ConfirmationID: e.ConfirmationID,
		AppliedAt:      nanos(e.AppliedAt),
	}
}

func (r appliedRow) model() models.AppliedEnvelope {
	return models.AppliedEnvelope{
		Digest:         r.Digest,
		AssetID:        r.AssetID,
		Kind:           models.IntentKind(r.Kind),
		ConfirmationID: r.ConfirmationID,
		AppliedAt:      fromNanos(r.AppliedAt),
	}
}
