package guard

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SampleStore keeps the labeled examples ("bad" and "good" texts) and the
// persisted model artifact. Labels live in a json file, rewritten as a whole on
// every mutation; the model is a gob blob written atomically via rename.
// Labels are the source of truth, the model is just a cache of the last fit.
type SampleStore struct {
	dataFile  string
	modelFile string

	bad  []string
	good []string
	lock sync.Mutex
}

type sampleData struct {
	Bad  []string `json:"bad"`
	Good []string `json:"good"`
}

// NewSampleStore creates a store backed by the given files and loads labels if
// the data file exists. A missing file is not an error, the store starts empty.
func NewSampleStore(dataFile, modelFile string) (*SampleStore, error) {
	s := &SampleStore{dataFile: dataFile, modelFile: modelFile}
	if err := s.load(); err != nil {
		return nil, fmt.Errorf("failed to load samples from %s: %w", dataFile, err)
	}
	return s, nil
}

func (s *SampleStore) load() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.dataFile) //nolint:gosec // file path is an operator-provided config value
	if err != nil {
		if os.IsNotExist(err) {
			s.bad, s.good = nil, nil
			return nil
		}
		return err
	}
	var sd sampleData
	if err := json.Unmarshal(data, &sd); err != nil {
		return fmt.Errorf("failed to parse samples: %w", err)
	}
	s.bad, s.good = sd.Bad, sd.Good
	return nil
}

// Reload re-reads labels from disk, used when the data file changed externally.
func (s *SampleStore) Reload() error { return s.load() }

// Add appends a labeled example, deduplicated by exact string equality, and
// rewrites the data file. Returns false if the example was already present.
func (s *SampleStore) Add(text string, isBad bool) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	target := &s.good
	if isBad {
		target = &s.bad
	}
	for _, t := range *target {
		if t == text {
			return false, nil
		}
	}
	*target = append(*target, text)

	if err := s.save(); err != nil {
		return false, fmt.Errorf("failed to save samples: %w", err)
	}
	return true, nil
}

// save rewrites the whole data file, caller must hold the lock
func (s *SampleStore) save() error {
	data, err := json.MarshalIndent(sampleData{Bad: s.bad, Good: s.good}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.dataFile, data, 0o600)
}

// Labels returns copies of both label lists.
func (s *SampleStore) Labels() (bad, good []string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	bad = append([]string{}, s.bad...)
	good = append([]string{}, s.good...)
	return bad, good
}

// SaveModel persists the model blob. Written to a temp file first and renamed
// into place so readers never see a partial artifact.
func (s *SampleStore) SaveModel(m *Model) error {
	if m == nil {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.modelFile), "model-*")
	if err != nil {
		return fmt.Errorf("failed to create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after successful rename

	if err := gob.NewEncoder(tmp).Encode(m); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp model file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.modelFile); err != nil {
		return fmt.Errorf("failed to replace model file: %w", err)
	}
	return nil
}

// LoadModel reads the persisted model. Returns nil without error if the file
// doesn't exist or the model is stale, i.e. its hash doesn't match the current
// label set - in that case the caller should retrain from labels.
func (s *SampleStore) LoadModel() (*Model, error) {
	f, err := os.Open(s.modelFile) //nolint:gosec // file path is an operator-provided config value
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	var m Model
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}

	bad, good := s.Labels()
	if m.LabelsHash != LabelsHash(bad, good) {
		log.Printf("[WARN] persisted model is stale relative to labels, discarding")
		return nil, nil
	}
	return &m, nil
}

// Watch monitors the data file for external edits and calls onReload after the
// change settles. Blocks until ctx is done. The data file must exist before
// watching starts.
func (s *SampleStore) Watch(ctx context.Context, delay time.Duration, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dataFile); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.dataFile, err)
	}

	reloadTimer := time.NewTimer(delay)
	reloadPending := false
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] stopping samples watcher: %v", ctx.Err())
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			log.Printf("[DEBUG] samples file %q updated, op: %v", event.Name, event.Op)
			if !reloadPending {
				reloadPending = true
				reloadTimer.Reset(delay)
			}
		case <-reloadTimer.C:
			if !reloadPending {
				continue
			}
			reloadPending = false
			if err := s.Reload(); err != nil {
				log.Printf("[WARN] failed to reload samples: %v", err)
				continue
			}
			onReload()
		case e, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[WARN] samples watcher error: %v", e)
		}
	}
}
