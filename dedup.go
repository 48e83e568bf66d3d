package sessiondedup

import (
	"context"

	"github.com/aadithya-v/sessiondedup/store"
)

// duplicateIDs returns every non-canonical session across groups.
func duplicateIDs(groups []DeviceGroup) []string {
	var ids []string
	for _, g := range groups {
		if g.Count() > 1 {
			ids = append(ids, g.duplicateIDs()...)
		}
	}
	return ids
}

// DeduplicateInPlace keeps only the most recently active session of each
// of the user's devices and returns how many rows it deleted. A second call
// on unchanged data deletes nothing.
//
// When the store supports transactions the read and the delete share one.
// Store errors are returned as is.
func (m *Manager) DeduplicateInPlace(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrUserRequired
	}

	if tx, ok := m.sessions.(store.Transactor); ok {
		var deleted int
		err := tx.WithinTx(ctx, func(s store.SessionStore) error {
			n, err := deduplicate(ctx, s, userID)
			deleted = n
			return err
		})
		if err != nil {
			return 0, err
		}
		return deleted, nil
	}

	return deduplicate(ctx, m.sessions, userID)
}

func deduplicate(ctx context.Context, s store.SessionStore, userID string) (int, error) {
	sessions, err := s.SelectAllByUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	ids := duplicateIDs(Group(sessions))
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := s.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}
