// Package storage persists a summary of each completed attack so past runs
// can be compared from the command line.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

const bucketRuns = "runs"

// RunRecord is the persisted summary of one attack.
type RunRecord struct {
	ID      string    `json:"id"`
	Started time.Time `json:"started"`

	Host       string `json:"host"`
	Users      int    `json:"users"`
	Mitigation string `json:"mitigation"`

	RawCount      int64   `json:"raw_count"`
	AdjustedCount int64   `json:"adjusted_count"`
	Failures      int64   `json:"failures"`
	RawAvgMs      float64 `json:"raw_avg_ms"`
	AdjustedAvgMs float64 `json:"adjusted_avg_ms"`
	RawP99Ms      int64   `json:"raw_p99_ms"`
	AdjustedP99Ms int64   `json:"adjusted_p99_ms"`
}

// Store is a bbolt-backed history of run records.
type Store struct {
	db *bbolt.DB
}

// DefaultPath returns the per-user history database location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to locate home directory")
	}
	dir := filepath.Join(home, ".swanling")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create %q", dir)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open history db %q", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize history db")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes one run record, keyed by its id.
func (s *Store) Save(rec RunRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.ID), data)
	})
}

// List returns all records, most recent first.
func (s *Store) List() ([]RunRecord, error) {
	var recs []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		return b.ForEach(func(_, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list run history")
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Started.After(recs[j].Started) })
	return recs, nil
}

// Get looks up one record by id.
func (s *Store) Get(id string) (*RunRecord, error) {
	var rec RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		v := b.Get([]byte(id))
		if v == nil {
			return errors.Errorf("run %q not found", id)
		}
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
