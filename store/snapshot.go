package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// snapshotVersion tags the on-disk schema. A mismatching tag on load means
// "start from defaults", not "migrate".
const snapshotVersion = 1

const snapshotFile = "planai-state.json"

type snapshotEnvelope struct {
	Version int   `json:"version"`
	SavedAt int64 `json:"savedAt"`
	State   State `json:"state"`
}

// Snapshotter persists the full store state as a single versioned JSON
// slot. Writes go through a temp file and rename so a crash mid-write
// never leaves a torn slot behind.
type Snapshotter struct {
	path   string
	logger *log.Logger
}

// NewSnapshotter creates the data directory if needed.
func NewSnapshotter(dir string, logger *log.Logger) (*Snapshotter, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshot dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Snapshotter{path: filepath.Join(dir, snapshotFile), logger: logger}, nil
}

// Save implements Persister.
func (sn *Snapshotter) Save(st State) error {
	env := snapshotEnvelope{
		Version: snapshotVersion,
		SavedAt: time.Now().UnixMilli(),
		State:   st,
	}
	data, err := sonic.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := sn.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, sn.path)
}

// Load reads the slot. A missing file, an undecodable envelope or a
// version mismatch all yield defaults; only I/O errors other than
// not-exist are reported.
func (sn *Snapshotter) Load() (State, error) {
	data, err := os.ReadFile(sn.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return emptyState(), nil
		}
		return emptyState(), err
	}
	var env snapshotEnvelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		sn.logger.Warnf("snapshot undecodable, starting from defaults: %v", err)
		return emptyState(), nil
	}
	if env.Version != snapshotVersion {
		sn.logger.WithFields(log.Fields{
			"found":    env.Version,
			"expected": snapshotVersion,
		}).Warn("snapshot version mismatch, starting from defaults")
		return emptyState(), nil
	}
	return normalize(env.State), nil
}
