package sync

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/fitlive/livechat/internal/store"
	"go.uber.org/zap"
)

// Reconciler manages sync checkpoints.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger}
}

// UpdateCheckpoint updates a sync checkpoint value.
func (r *Reconciler) UpdateCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := r.db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetCheckpoint retrieves a sync checkpoint value.
func (r *Reconciler) GetCheckpoint(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// MarkEvent records when the last chat event for sessionID was applied.
func (r *Reconciler) MarkEvent(sessionID string, at time.Time) error {
	return r.UpdateCheckpoint(lastEventKey(sessionID), strconv.FormatInt(at.UnixMilli(), 10))
}

// LastEvent returns when the last chat event for sessionID was applied.
// ok is false when none was recorded.
func (r *Reconciler) LastEvent(sessionID string) (at time.Time, ok bool, err error) {
	v, err := r.GetCheckpoint(lastEventKey(sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func lastEventKey(sessionID string) string {
	return "last_event_at:" + sessionID
}
