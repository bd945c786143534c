// Package checkpoint persists and restores workflow execution state at
// `checkpoint` step boundaries, so a failed or interrupted run can resume
// from the last saved point instead of restarting from scratch. Writes use a
// temp-file-then-rename pattern in the same directory as the target file for
// cross-platform atomicity.
package checkpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gofrs/flock"

	"github.com/maverickhq/maverick/step"
)

// Checkpoint is the persisted snapshot of a workflow run at one checkpoint
// boundary.
type Checkpoint struct {
	WorkflowName string            `json:"workflow_name"`
	CheckpointID string            `json:"checkpoint_id"`
	RunID        string            `json:"run_id"`
	InputsHash   string            `json:"inputs_hash"`
	StepResults  []step.StepResult `json:"step_results"`
	SavedAt      time.Time         `json:"saved_at"`
}

// Store persists Checkpoints under BaseDir/<workflow_name>/<checkpoint_id>.json.
type Store struct {
	BaseDir string

	hashMu     sync.Mutex
	lastWrites map[string]uint64
}

// NewStore creates a Store rooted at baseDir, scanning for and removing any
// leftover `.tmp` files from a prior process that crashed mid-write.
func NewStore(baseDir string) (*Store, error) {
	s := &Store{BaseDir: baseDir, lastWrites: make(map[string]uint64)}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("checkpoint: creating base dir %q: %w", baseDir, err)
	}
	if err := s.cleanupStaleTemp(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) path(workflowName, checkpointID string) string {
	return filepath.Join(s.BaseDir, workflowName, checkpointID+".json")
}

func (s *Store) lockPath(workflowName string) string {
	return filepath.Join(s.BaseDir, workflowName, ".lock")
}

// Save writes cp atomically, guarded by an advisory file lock scoped to
// cp.WorkflowName so concurrent runs of the same workflow serialize their
// checkpoint writes.
func (s *Store) Save(cp Checkpoint) error {
	path := s.path(cp.WorkflowName, cp.CheckpointID)

	// Hash the fields that actually change run state, not SavedAt (which
	// changes every call regardless), so a redundant Save after a step that
	// produced no new output or completion doesn't touch disk.
	content, err := json.Marshal(struct {
		StepResults []step.StepResult
		InputsHash  string
	}{cp.StepResults, cp.InputsHash})
	if err != nil {
		return fmt.Errorf("checkpoint: hashing content: %w", err)
	}
	sum := xxhash.Sum64(content)
	s.hashMu.Lock()
	unchanged := s.lastWrites[path] == sum
	s.hashMu.Unlock()
	if unchanged {
		return nil
	}

	cp.SavedAt = time.Now().UTC()
	dir := filepath.Join(s.BaseDir, cp.WorkflowName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("checkpoint: creating %q: %w", dir, err)
	}

	lock := flock.New(s.lockPath(cp.WorkflowName))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("checkpoint: acquiring lock: %w", err)
	}
	defer lock.Unlock() //nolint:errcheck

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: encoding: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}

	s.hashMu.Lock()
	s.lastWrites[path] = sum
	s.hashMu.Unlock()
	return nil
}

// Load reads one checkpoint by ID.
func (s *Store) Load(workflowName, checkpointID string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(workflowName, checkpointID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: reading %q: %w", checkpointID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: decoding %q: %w", checkpointID, err)
	}
	return &cp, nil
}

// LoadLatest returns the most recently saved checkpoint for workflowName, or
// nil if none exists.
func (s *Store) LoadLatest(workflowName string) (*Checkpoint, error) {
	dir := filepath.Join(s.BaseDir, workflowName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: listing %q: %w", dir, err)
	}

	var latest *Checkpoint
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		id := e.Name()[:len(e.Name())-len(".json")]
		cp, err := s.Load(workflowName, id)
		if err != nil {
			return nil, err
		}
		if cp == nil {
			continue
		}
		if latest == nil || cp.SavedAt.After(latest.SavedAt) {
			latest = cp
		}
	}
	return latest, nil
}

// Clear removes all checkpoints for workflowName.
func (s *Store) Clear(workflowName string) error {
	dir := filepath.Join(s.BaseDir, workflowName)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("checkpoint: clearing %q: %w", dir, err)
	}
	return nil
}

// InputsHash computes the first 16 hex characters of the SHA-256 digest of
// the workflow's resolved input values, used to detect input drift between a
// checkpoint's save time and a resume attempt.
func InputsHash(inputs map[string]any) (string, error) {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(inputs))
	for _, k := range keys {
		ordered[k] = inputs[k]
	}

	canon := make([]byte, 0, 256)
	for _, k := range keys {
		v, err := json.Marshal(ordered[k])
		if err != nil {
			return "", fmt.Errorf("checkpoint: hashing input %q: %w", k, err)
		}
		canon = append(canon, []byte(k)...)
		canon = append(canon, ':')
		canon = append(canon, v...)
		canon = append(canon, ';')
	}

	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])[:16], nil
}

func (s *Store) cleanupStaleTemp() error {
	return filepath.Walk(s.BaseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".tmp" {
			return os.Remove(path)
		}
		return nil
	})
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("checkpoint: creating temp file in %q: %w", dir, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close() //nolint:errcheck
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("checkpoint: writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("checkpoint: closing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("checkpoint: renaming temp file to %q: %w", path, err)
	}
	return nil
}
