// Package manifest persists a realized scene catalog so later runs can sample
// from exactly the same files without re-enumerating the dataset root.
package manifest

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

// ErrEmpty is returned when a manifest lists no scenes.
var ErrEmpty = errors.New("manifest lists no scenes")

// Entry is one pinned scene.
type Entry struct {
	Path       string `yaml:"path"`
	ScenarioID string `yaml:"scenario_id,omitempty"`
}

// Manifest describes a catalog and the parameters it was built with.
type Manifest struct {
	RunID       string    `yaml:"run_id"`
	CreatedAt   time.Time `yaml:"created_at"`
	Root        string    `yaml:"root,omitempty"`
	Seed        int64     `yaml:"seed"`
	DatasetSize int       `yaml:"dataset_size"`
	Shuffle     bool      `yaml:"shuffle"`
	Scenes      []Entry   `yaml:"scenes"`
}

// NewRunID returns a fresh lexicographically sortable run identifier.
func NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Paths returns the scene paths in manifest order.
func (m Manifest) Paths() []string {
	out := make([]string, len(m.Scenes))
	for i, e := range m.Scenes {
		out[i] = e.Path
	}
	return out
}

func lockPath(path string) string {
	return path + ".lock"
}

// Write stores m at path as YAML. The file is replaced atomically while an
// exclusive lock on path+".lock" is held.
func Write(path string, m Manifest) error {
	if len(m.Scenes) == 0 {
		return ErrEmpty
	}
	if m.RunID == "" {
		m.RunID = NewRunID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	lock := flock.New(lockPath(path))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock manifest: %w", err)
	}
	defer lock.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// Read loads the manifest at path. When a writer's lock file exists, Read
// holds a shared lock on it for the duration; it never creates files.
func Read(path string) (Manifest, error) {
	if _, err := os.Stat(lockPath(path)); err == nil {
		lock := flock.New(lockPath(path), flock.SetFlag(os.O_RDONLY))
		if err := lock.RLock(); err != nil {
			return Manifest{}, fmt.Errorf("lock manifest: %w", err)
		}
		defer lock.Unlock()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if len(m.Scenes) == 0 {
		return Manifest{}, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	for i, e := range m.Scenes {
		if e.Path == "" {
			return Manifest{}, fmt.Errorf("%s: scene %d has empty path", path, i)
		}
	}
	return m, nil
}
