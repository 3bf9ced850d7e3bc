package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eveBot/internal/domain"
	"eveBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary journal for testing
func setupTestDB(t *testing.T) (*Journal, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "eve-journal-test-*")
	require.NoError(t, err)

	j, err := NewJournal(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		j.Close()
		os.RemoveAll(tmpDir)
	}
	return j, cleanup
}

type lotPayload struct {
	State string  `json:"state"`
	Size  float64 `json:"size"`
}

func TestJournal_RecordAndFind(t *testing.T) {
	j, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	j.now = func() time.Time { return time.UnixMilli(1_000) }

	snaps := []domain.Snapshot{
		{Name: "lot", ID: "l1", Type: 1, Data: lotPayload{State: "new", Size: 1}},
		{Name: "order", ID: "o1", Type: 1, Data: map[string]interface{}{"state": "created"}},
		{Name: "lot", ID: "l1", Type: 2, Data: lotPayload{State: "open", Size: 2}},
	}
	for _, s := range snaps {
		require.NoError(t, j.Record(ctx, s))
	}

	lots, err := j.FindByEntity(ctx, "lot", 10)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, uint64(2), lots[0].Sequence, "newest first")
	assert.Equal(t, "l1", lots[0].EntityID)
	assert.Equal(t, int64(1_000), lots[0].RecordedAt)

	var p lotPayload
	require.NoError(t, json.Unmarshal(lots[0].Payload, &p))
	assert.Equal(t, lotPayload{State: "open", Size: 2}, p)

	limited, err := j.FindByEntity(ctx, "lot", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := j.FindByEntity(ctx, "balance", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJournal_Latest(t *testing.T) {
	j, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, domain.Snapshot{Name: "order", ID: "o1", Type: 3, Data: "c"}))
	require.NoError(t, j.Record(ctx, domain.Snapshot{Name: "order", ID: "o1", Type: 1, Data: "a"}))

	e, err := j.Latest(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), e.Sequence)
	assert.Equal(t, `"c"`, string(e.Payload))

	_, err = j.Latest(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestJournal_RecordUnencodable(t *testing.T) {
	j, cleanup := setupTestDB(t)
	defer cleanup()

	err := j.Record(context.Background(), domain.Snapshot{Name: "bad", ID: "x", Data: make(chan int)})
	assert.Error(t, err)
}

func TestNewJournal_RequiresLogger(t *testing.T) {
	_, err := NewJournal(Config{DBPath: filepath.Join(t.TempDir(), "x.db")})
	assert.Error(t, err)
}

var _ ports.SnapshotJournal = (*Journal)(nil)
