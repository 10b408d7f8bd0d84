package kv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vedran77/hadra/internal/domain"
	"github.com/vedran77/hadra/internal/storage"
)

type SessionRepo struct {
	store *storage.Store
}

func NewSessionRepo(store *storage.Store) *SessionRepo {
	return &SessionRepo{store: store}
}

// Get returns the persisted session, nil if the slot is empty, or an error
// wrapping storage.ErrCorruptRecord if it cannot be decoded.
func (r *SessionRepo) Get(ctx context.Context) (*domain.SessionRecord, error) {
	var rec *domain.SessionRecord
	err := r.store.View(ctx, func(tx *storage.Tx) error {
		data, ok, err := tx.Session()
		if err != nil || !ok {
			return err
		}
		var decoded domain.SessionRecord
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("%w: session: %v", storage.ErrCorruptRecord, err)
		}
		if decoded.Token == "" {
			return fmt.Errorf("%w: session: missing token", storage.ErrCorruptRecord)
		}
		rec = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SessionRepo) Put(ctx context.Context, rec *domain.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return r.store.Update(ctx, func(tx *storage.Tx) error {
		return tx.PutSession(data)
	})
}

func (r *SessionRepo) Clear(ctx context.Context) error {
	return r.store.Update(ctx, func(tx *storage.Tx) error {
		return tx.ClearSession()
	})
}
