// Package ledger is the optional persistent audit trail for emitted
// AlertEvents, backing the `[log_pipeline.storage]` config section
// (spec.md §6). A direct structural adaptation of the teacher's
// internal/storage/bolt.go ledger bucket: same schema-version bucket,
// same sortable timestamp-prefixed key, same retention/prune model,
// repointed from process-state transitions to alert records.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dongwonkwak/ironpost/internal/events"
	"github.com/dongwonkwak/ironpost/internal/ironerr"
)

const (
	// SchemaVersion is the current ledger schema version.
	SchemaVersion = "1"

	bucketAlerts = "alerts"
	bucketMeta   = "meta"
)

// Ledger persists emitted AlertEvents for operator inspection through
// Recent, independent of the in-memory dedup state the alert generator
// itself keeps. No CLI command reads the ledger.
type Ledger struct {
	db            *bolt.DB
	retentionDays int
}

// Open opens (or creates) the ledger database at path.
func Open(path string, retentionDays int) (*Ledger, error) {
	if retentionDays <= 0 {
		retentionDays = 30
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, ironerr.Wrap(ironerr.KindStorage, "open log-pipeline ledger", err).WithPath(path)
	}

	l := &Ledger{db: db, retentionDays: retentionDays}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketAlerts, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			return meta.Put([]byte("schema_version"), []byte(SchemaVersion))
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, ironerr.Wrap(ironerr.KindStorage, "initialize log-pipeline ledger schema", err).WithPath(path)
	}
	return l, nil
}

// Close closes the underlying bbolt file.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// keyTimeLayout is RFC3339 with a fixed nine-digit fraction, so every key
// timestamp has the same width.
const keyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// alertKey is a sortable key: fixed-width UTC timestamp + "_" + alert id,
// so lexicographic order equals chronological order.
func alertKey(a events.AlertEvent) []byte {
	return []byte(fmt.Sprintf("%s_%s", a.CreatedAt.UTC().Format(keyTimeLayout), a.AlertID))
}

// Append persists one AlertEvent.
func (l *Ledger) Append(a events.AlertEvent) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert for ledger: %w", err)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketAlerts)).Put(alertKey(a), data)
	})
}

// PruneOld deletes ledger entries older than retentionDays. Returns the
// number of entries deleted.
func (l *Ledger) PruneOld() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.retentionDays).Format(keyTimeLayout)

	var deleted int
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAlerts))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= cutoff {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Recent returns up to limit of the most recently appended alerts,
// newest first.
func (l *Ledger) Recent(limit int) ([]events.AlertEvent, error) {
	var out []events.AlertEvent
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketAlerts)).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var a events.AlertEvent
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}
