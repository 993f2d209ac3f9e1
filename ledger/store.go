package ledger

import (
	"context"

	"github.com/ferreirogomes/cotas/models"
)

// Store persiste atomicamente o ChangeSet de uma operação.
type Store interface {
	Commit(ctx context.Context, cs models.ChangeSet) error
}

// NopStore mantém o estado só em memória.
type NopStore struct{}

func (NopStore) Commit(context.Context, models.ChangeSet) error { return nil }
