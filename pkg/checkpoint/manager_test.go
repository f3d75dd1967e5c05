package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedManager(t *testing.T) *Manager {
	t.Helper()

	m := NewManager(t.TempDir(), "abc123")
	m.now = func() time.Time { return time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC) }

	return m
}

func TestManager_Paths(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	m := NewManager(dir, "abc123")

	assert.Equal(t, filepath.Join(dir, "abc123"), m.Dir())
	assert.Equal(t, filepath.Join(dir, "abc123", "journal.json"), m.JournalPath())
	assert.False(t, m.Exists())
}

func TestManifestKey_StableAndShort(t *testing.T) {
	t.Parallel()

	a := ManifestKey("manifests/cohort.yaml")
	assert.Len(t, a, 16)
	assert.Equal(t, a, ManifestKey("manifests/cohort.yaml"))
	assert.NotEqual(t, a, ManifestKey("manifests/other.yaml"))
}

func TestManager_OpenFreshJournal(t *testing.T) {
	t.Parallel()

	m := fixedManager(t)

	journal, err := m.Open("cohort.yaml")
	require.NoError(t, err)

	assert.Equal(t, JournalVersion, journal.Version)
	assert.Equal(t, "cohort.yaml", journal.Manifest)
	assert.Equal(t, "2026-02-03T04:05:06Z", journal.CreatedAt)
	assert.Empty(t, journal.Completed)
	assert.False(t, m.Exists())
}

func TestManager_SaveAndReopen(t *testing.T) {
	t.Parallel()

	m := fixedManager(t)

	journal, err := m.Open("cohort.yaml")
	require.NoError(t, err)

	journal.MarkDone("P1")
	journal.MarkFailed("P2", errors.New("boom"))
	require.NoError(t, m.Save(journal))
	assert.True(t, m.Exists())

	reopened, err := m.Open("cohort.yaml")
	require.NoError(t, err)
	assert.True(t, reopened.Done("P1"))
	assert.False(t, reopened.Done("P2"))
	assert.Equal(t, map[string]string{"P2": "boom"}, reopened.Failed)

	_, err = m.Open("other.yaml")
	require.ErrorIs(t, err, ErrManifestMismatch)
}

func TestManager_RejectsOtherVersion(t *testing.T) {
	t.Parallel()

	m := fixedManager(t)

	require.NoError(t, os.MkdirAll(m.Dir(), 0o750))
	require.NoError(t, os.WriteFile(m.JournalPath(), []byte(`{"version":99,"manifest":"m"}`), 0o600))

	_, err := m.Open("m")
	require.ErrorIs(t, err, ErrVersionMismatch)
}

func TestManager_ClearMissingIsNoop(t *testing.T) {
	t.Parallel()

	m := fixedManager(t)

	require.NoError(t, m.Clear())
}

func TestTracker_RecordAndFinish(t *testing.T) {
	t.Parallel()

	m := fixedManager(t)

	tracker, err := NewTracker(m, "cohort.yaml")
	require.NoError(t, err)

	require.NoError(t, tracker.Record("P1", nil))
	require.NoError(t, tracker.Record("P2", errors.New("schema")))
	assert.True(t, tracker.Completed("P1"))
	assert.False(t, tracker.Completed("P2"))

	require.NoError(t, tracker.Finish())
	assert.True(t, m.Exists(), "journal with failures is kept")

	require.NoError(t, tracker.Record("P2", nil))
	assert.Empty(t, tracker.Journal().Failed)

	require.NoError(t, tracker.Finish())
	assert.False(t, m.Exists())
}

func TestJournal_MarkDoneIsIdempotent(t *testing.T) {
	t.Parallel()

	var j Journal

	j.MarkDone("P1")
	j.MarkDone("P1")

	assert.Equal(t, []string{"P1"}, j.Completed)
}
