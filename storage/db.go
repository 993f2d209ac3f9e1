package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ferreirogomes/cotas/models"
	"github.com/ferreirogomes/cotas/storage/migrations"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func init() {
	// O driver do modernc se registra como "sqlite", nome que o sqlx não conhece.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// dialects mapeia o driver do database/sql para o dialeto do sql-migrate.
var dialects = map[string]string{
	"postgres": "postgres",
	"sqlite":   "sqlite3",
}

// DB é o armazenamento relacional do ledger (PostgreSQL em produção, SQLite em desenvolvimento).
type DB struct {
	*sqlx.DB
	logger *zap.Logger
}

// NewDB conecta-se ao banco e executa as migrações.
func NewDB(driver, dataSourceName string, logger *zap.Logger) (*DB, error) {
	dialect, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("driver de banco não suportado: %q", driver)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sqlx.Connect(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao banco de dados: %w", err)
	}
	if driver == "sqlite" {
		// Uma conexão só: bancos em memória não são compartilhados entre conexões.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("falha ao pingar o banco de dados: %w", err)
	}
	logger.Info("conexão com o banco estabelecida", zap.String("driver", driver))

	if err := runMigrations(db.DB, dialect, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("falha ao executar migrações: %w", err)
	}
	return &DB{DB: db, logger: logger}, nil
}

// runMigrations executa as migrações embutidas usando sql-migrate.
func runMigrations(db *sql.DB, dialect string, logger *zap.Logger) error {
	source := &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrations.FS,
		Root:       ".",
	}

	n, err := migrate.Exec(db, dialect, source, migrate.Up)
	if err != nil {
		return fmt.Errorf("erro ao aplicar migrações: %w", err)
	}
	if n > 0 {
		logger.Info("migrações aplicadas", zap.Int("count", n))
	} else {
		logger.Debug("nenhuma migração nova para aplicar")
	}
	return nil
}

// Commit grava o ChangeSet em uma única transação. Ou tudo é gravado, ou nada.
func (d *DB) Commit(ctx context.Context, cs models.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("falha ao iniciar transação: %w", err)
	}
	defer tx.Rollback()

	for _, a := range cs.Assets {
		if _, err := tx.NamedExecContext(ctx, upsertAsset, toAssetRow(a)); err != nil {
			return fmt.Errorf("falha ao salvar ativo %s: %w", a.ID, err)
		}
	}
	for _, h := range cs.Holdings {
		if _, err := tx.NamedExecContext(ctx, upsertHolding, toHoldingRow(h)); err != nil {
			return fmt.Errorf("falha ao salvar posição %s/%s: %w", h.AssetID, h.HolderID, err)
		}
	}
	for _, c := range cs.Claims {
		if _, err := tx.NamedExecContext(ctx, upsertClaim, toClaimRow(c)); err != nil {
			return fmt.Errorf("falha ao salvar resgate %s/%s: %w", c.AssetID, c.HolderID, err)
		}
	}
	for _, a := range cs.Accruals {
		if _, err := tx.NamedExecContext(ctx, upsertAccrual, toAccrualRow(a)); err != nil {
			return fmt.Errorf("falha ao salvar renda do ativo %s: %w", a.AssetID, err)
		}
	}
	for _, p := range cs.Proposals {
		if _, err := tx.NamedExecContext(ctx, upsertProposal, toProposalRow(p)); err != nil {
			return fmt.Errorf("falha ao salvar proposta %s: %w", p.ID, err)
		}
	}
	for _, v := range cs.Votes {
		if _, err := tx.NamedExecContext(ctx, insertVote, toVoteRow(v)); err != nil {
			return fmt.Errorf("falha ao salvar voto %s/%s: %w", v.ProposalID, v.HolderID, err)
		}
	}
	for _, s := range cs.Settlements {
		if _, err := tx.NamedExecContext(ctx, insertSettlement, toSettlementRow(s)); err != nil {
			return fmt.Errorf("falha ao salvar liquidação do ativo %s: %w", s.AssetID, err)
		}
		for i, p := range s.Payouts {
			row := payoutRow{AssetID: s.AssetID, Position: i, HolderID: p.HolderID, Amount: int64(p.Amount)}
			if _, err := tx.NamedExecContext(ctx, insertPayout, row); err != nil {
				return fmt.Errorf("falha ao salvar pagamento da liquidação %s: %w", s.AssetID, err)
			}
		}
	}

	for _, e := range cs.Applied {
		if _, err := tx.NamedExecContext(ctx, insertApplied, toAppliedRow(e)); err != nil {
			return fmt.Errorf("falha ao registrar envelope %s: %w", e.Digest, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("falha ao confirmar transação: %w", err)
	}
	return nil
}

// Load lê todo o estado salvo, para reconstruir o ledger na inicialização.
func (d *DB) Load(ctx context.Context) (models.ChangeSet, error) {
	var cs models.ChangeSet

	var assets []assetRow
	if err := d.SelectContext(ctx, &assets, `SELECT * FROM assets ORDER BY id`); err != nil {
		return cs, fmt.Errorf("falha ao carregar ativos: %w", err)
	}
	for _, r := range assets {
		cs.Assets = append(cs.Assets, r.model())
	}

	var holdings []holdingRow
	if err := d.SelectContext(ctx, &holdings, `SELECT * FROM holdings ORDER BY asset_id, holder_id`); err != nil {
		return cs, fmt.Errorf("falha ao carregar posições: %w", err)
	}
	for _, r := range holdings {
		cs.Holdings = append(cs.Holdings, r.model())
	}

	var claims []claimRow
	if err := d.SelectContext(ctx, &claims, `SELECT * FROM claims ORDER BY asset_id, holder_id`); err != nil {
		return cs, fmt.Errorf("falha ao carregar resgates: %w", err)
	}
	for _, r := range claims {
		cs.Claims = append(cs.Claims, r.model())
	}

	var accruals []accrualRow
	if err := d.SelectContext(ctx, &accruals, `SELECT * FROM accruals ORDER BY asset_id`); err != nil {
		return cs, fmt.Errorf("falha ao carregar rendas: %w", err)
	}
	for _, r := range accruals {
		cs.Accruals = append(cs.Accruals, r.model())
	}

	var proposals []proposalRow
	if err := d.SelectContext(ctx, &proposals, `SELECT * FROM proposals ORDER BY created_at, id`); err != nil {
		return cs, fmt.Errorf("falha ao carregar propostas: %w", err)
	}
	for _, r := range proposals {
		cs.Proposals = append(cs.Proposals, r.model())
	}

	var votes []voteRow
	if err := d.SelectContext(ctx, &votes, `SELECT * FROM votes ORDER BY proposal_id, holder_id`); err != nil {
		return cs, fmt.Errorf("falha ao carregar votos: %w", err)
	}
	for _, r := range votes {
		cs.Votes = append(cs.Votes, r.model())
	}

	var settlements []settlementRow
	if err := d.SelectContext(ctx, &settlements, `SELECT * FROM settlements ORDER BY asset_id`); err != nil {
		return cs, fmt.Errorf("falha ao carregar liquidações: %w", err)
	}
	var payouts []payoutRow
	if err := d.SelectContext(ctx, &payouts, `SELECT * FROM settlement_payouts ORDER BY asset_id, position`); err != nil {
		return cs, fmt.Errorf("falha ao carregar pagamentos: %w", err)
	}
	byAsset := make(map[string][]models.Payout)
	for _, p := range payouts {
		byAsset[p.AssetID] = append(byAsset[p.AssetID], models.Payout{HolderID: p.HolderID, Amount: uint64(p.Amount)})
	}
	for _, r := range settlements {
		s := r.model()
		s.Payouts = byAsset[s.AssetID]
		cs.Settlements = append(cs.Settlements, s)
	}

	var applied []appliedRow
	if err := d.SelectContext(ctx, &applied, `SELECT * FROM applied_envelopes ORDER BY applied_at, digest`); err != nil {
		return cs, fmt.Errorf("falha ao carregar envelopes aplicados: %w", err)
	}
	for _, r := range applied {
		cs.Applied = append(cs.Applied, r.model())
	}

	d.logger.Info("estado carregado do banco",
		zap.Int("assets", len(cs.Assets)),
		zap.Int("holdings", len(cs.Holdings)),
		zap.Int("proposals", len(cs.Proposals)),
		zap.Int("applied_envelopes", len(cs.Applied)),
	)
	return cs, nil
}

// Instantes são gravados em nanossegundos Unix; o instante zero vira NULL.

func nanos(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64).UTC()
}
