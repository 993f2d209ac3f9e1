// Package ledger é o registro autoritativo de ativos fracionados: posições (OwnershipLedger),
// renda acumulada e resgatada (IncomeDistributor) e governança ponderada (GovernanceEngine).
//
// Os três componentes compartilham um único cadeado por ativo. Toda operação que altera estado
// adquire exatamente um cadeado, calcula cópias novas dos registros, persiste o ChangeSet no Store
// e só então publica as cópias em memória. Se o Store falhar nada muda.
package ledger
