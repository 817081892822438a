package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbload/internal/metrics"
	"dbload/internal/profile"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summaryFixture(rate float64) metrics.Summary {
	return metrics.Summary{
		Profile:              "fixture",
		TotalOperations:      10,
		SuccessfulOperations: int(rate / 10),
		SuccessRate:          rate,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := testStore(t)

	item := NewHistoryItem("write", profile.LowLoad(), summaryFixture(100))
	require.NoError(t, s.Save(item))

	got, err := s.Get(item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, got.ID)
	assert.Equal(t, "write", got.Scenario)
	assert.Equal(t, 100.0, got.Summary.SuccessRate)
	assert.Equal(t, "Low Load", got.Profile.Name)
}

func TestGetMissing(t *testing.T) {
	s := testStore(t)
	_, err := s.Get("no-such-run")
	assert.Error(t, err)
}

func TestListNewestFirst(t *testing.T) {
	s := testStore(t)

	older := NewHistoryItem("write", profile.LowLoad(), summaryFixture(90))
	older.Timestamp = time.Now().Add(-time.Hour)
	newer := NewHistoryItem("read", profile.LowLoad(), summaryFixture(100))

	require.NoError(t, s.Save(older))
	require.NoError(t, s.Save(newer))

	items := s.List()
	require.Len(t, items, 2)
	assert.Equal(t, newer.ID, items[0].ID)
	assert.Equal(t, older.ID, items[1].ID)
}

func TestListEmpty(t *testing.T) {
	assert.Empty(t, testStore(t).List())
}
