package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"

	"dbload/internal/metrics"
	"dbload/internal/profile"
)

const bucketRuns = "runs"

// HistoryItem is one completed run's result, as persisted.
type HistoryItem struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Scenario  string          `json:"scenario"`
	Profile   profile.Profile `json:"profile"`
	Summary   metrics.Summary `json:"summary"`
}

// NewHistoryItem stamps a summary for persistence.
func NewHistoryItem(scenario string, p profile.Profile, s metrics.Summary) HistoryItem {
	return HistoryItem{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Scenario:  scenario,
		Profile:   p,
		Summary:   s,
	}
}

// Store keeps run history in a bbolt file.
type Store struct {
	db *bbolt.DB
}

// DefaultPath is the per-user history location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".dbload", "history.db"), nil
}

func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "creating history directory")
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "opening history store")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing history bucket")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one run. Keys are timestamp-prefixed so cursor order is
// chronological.
func (s *Store) Save(item HistoryItem) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))

		key := fmt.Sprintf("%020d_%s", item.Timestamp.UnixNano(), item.ID)
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// List returns saved runs, newest first.
func (s *Store) List() []HistoryItem {
	var items []HistoryItem

	s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		c := b.Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err == nil {
				items = append(items, item)
			}
		}
		return nil
	})

	return items
}

// Get looks one run up by its ID.
func (s *Store) Get(id string) (*HistoryItem, error) {
	var found *HistoryItem

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))
		c := b.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var item HistoryItem
			if err := json.Unmarshal(v, &item); err != nil {
				continue
			}
			if item.ID == id {
				found = &item
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errors.Errorf("run %s not found", id)
	}
	return found, nil
}
