package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/miraload/pkg/persist"
)

// JournalVersion is the current journal format version.
const JournalVersion = 1

const journalBasename = "journal"

// Sentinel errors for journal validation.
var (
	ErrManifestMismatch = errors.New("manifest mismatch")
	ErrVersionMismatch  = errors.New("journal version mismatch")
)

// DefaultDir returns the default checkpoint directory (~/.miraload/checkpoints).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return filepath.Join(home, ".miraload", "checkpoints")
}

// ManifestKey computes a short hash of the manifest path for use as directory name.
func ManifestKey(manifestPath string) string {
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		abs = manifestPath
	}

	h := sha256.Sum256([]byte(abs))

	return hex.EncodeToString(h[:8]) // First 8 bytes = 16 hex chars.
}

// Manager stores the journal of one manifest.
type Manager struct {
	BaseDir string
	Key     string

	persister *persist.Persister[Journal]
	now       func() time.Time
}

// NewManager creates a new checkpoint manager.
func NewManager(baseDir, key string) *Manager {
	return &Manager{
		BaseDir:   baseDir,
		Key:       key,
		persister: persist.NewPersister[Journal](journalBasename, &persist.JSONCodec{Indent: "  ", Strict: true}),
		now:       time.Now,
	}
}

// Dir returns the directory holding this manifest's journal.
func (m *Manager) Dir() string {
	return filepath.Join(m.BaseDir, m.Key)
}

// JournalPath returns the path to the journal file.
func (m *Manager) JournalPath() string {
	return m.persister.Path(m.Dir())
}

// Exists reports whether a journal was saved.
func (m *Manager) Exists() bool {
	return m.persister.Exists(m.Dir())
}

// Clear removes the journal.
func (m *Manager) Clear() error {
	err := os.RemoveAll(m.Dir())
	if err != nil {
		return fmt.Errorf("remove checkpoint dir: %w", err)
	}

	return nil
}

// Open returns the stored journal for manifest, or a fresh one when none
// exists. A journal written for another manifest or format is rejected.
func (m *Manager) Open(manifest string) (*Journal, error) {
	if !m.Exists() {
		stamp := m.now().UTC().Format(time.RFC3339)

		return &Journal{Version: JournalVersion, Manifest: manifest, CreatedAt: stamp, UpdatedAt: stamp}, nil
	}

	journal, err := m.persister.Load(m.Dir())
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}

	if journal.Version != JournalVersion {
		return nil, fmt.Errorf("%w: journal has %d, want %d", ErrVersionMismatch, journal.Version, JournalVersion)
	}

	if journal.Manifest != manifest {
		return nil, fmt.Errorf("%w: journal has %q, got %q", ErrManifestMismatch, journal.Manifest, manifest)
	}

	return journal, nil
}

// Save writes the journal.
func (m *Manager) Save(journal *Journal) error {
	journal.UpdatedAt = m.now().UTC().Format(time.RFC3339)

	err := m.persister.Save(m.Dir(), journal)
	if err != nil {
		return fmt.Errorf("save journal: %w", err)
	}

	return nil
}

// Tracker binds a journal to its manager and saves after every record.
type Tracker struct {
	manager *Manager
	journal *Journal
}

// NewTracker opens the journal of manifest.
func NewTracker(m *Manager, manifest string) (*Tracker, error) {
	journal, err := m.Open(manifest)
	if err != nil {
		return nil, err
	}

	return &Tracker{manager: m, journal: journal}, nil
}

// Completed reports whether id already finished in an earlier attempt.
func (t *Tracker) Completed(id string) bool {
	return t.journal.Done(id)
}

// Record stores the outcome of id. A nil loadErr marks it done.
func (t *Tracker) Record(id string, loadErr error) error {
	if loadErr == nil {
		t.journal.MarkDone(id)
	} else {
		t.journal.MarkFailed(id, loadErr)
	}

	return t.manager.Save(t.journal)
}

// Finish clears the journal when no target failed, and keeps it otherwise.
func (t *Tracker) Finish() error {
	if len(t.journal.Failed) > 0 {
		return nil
	}

	return t.manager.Clear()
}

// Journal returns the tracked journal.
func (t *Tracker) Journal() *Journal {
	return t.journal
}
