package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	for i, status := range []string{"success", "failed", "quota"} {
		err := s.Record(ctx, Event{
			BatchID:    "batch-1",
			BookID:     "15042",
			VolID:      "v" + string(rune('1'+i)),
			Title:      "Vol 0" + string(rune('1'+i)),
			Format:     "epub",
			Status:     status,
			SizeBytes:  int64(1000 * (i + 1)),
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
		})
		require.NoError(t, err)
	}

	events, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Newest first.
	assert.Equal(t, "v3", events[0].VolID)
	assert.Equal(t, "quota", events[0].Status)
	assert.Equal(t, "v1", events[2].VolID)
	assert.Equal(t, int64(1000), events[2].SizeBytes)
	assert.True(t, events[2].FinishedAt.Equal(base.Add(30*time.Second)))
}

func TestRecentLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, Event{
			BatchID: "b", BookID: "1", VolID: "v", Status: "success",
			StartedAt: time.Now(), FinishedAt: time.Now(),
		}))
	}

	events, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestRecordErrorMessagePersists(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Event{
		BatchID: "b", BookID: "1", VolID: "v1", Status: "failed",
		Error:     "all mirrors exhausted: [kxx.moe, kzz.moe]",
		StartedAt: time.Now(), FinishedAt: time.Now(),
	}))

	events, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Error, "mirrors exhausted")
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record(context.Background(), Event{
		BatchID: "b", BookID: "1", VolID: "v", Status: "skipped",
		StartedAt: time.Now(), FinishedAt: time.Now(),
	}))
}
