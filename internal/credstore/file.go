package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const credentialsFileMode = 0o600

var errCorruptedFile = errors.New("credentials file is corrupted")

// FileTier keeps values as a JSON object in a single file
// Writes are atomic: temp file, fsync, rename
type FileTier struct {
	path string
	mu   sync.Mutex
}

func NewFileTier(path string) *FileTier {
	return &FileTier{path: path}
}

// DefaultPath returns credentials file location inside user config dir
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("can't find user config dir: %w", err)
	}
	return filepath.Join(dir, "edps", "credentials.json"), nil
}

func (t *FileTier) Path() string {
	return t.path
}

func (t *FileTier) Get(key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	values, err := t.read()
	if err != nil {
		return "", false, err
	}

	v, ok := values[key]
	return v, ok, nil
}

func (t *FileTier) Set(key string, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Corrupted content is replaced
	values, err := t.read()
	if errors.Is(err, errCorruptedFile) {
		values, err = make(map[string]string), nil
	}
	if err != nil {
		return err
	}
	values[key] = value

	return t.write(values)
}

func (t *FileTier) Delete(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	values, err := t.read()
	if errors.Is(err, errCorruptedFile) {
		return t.remove()
	}
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)

	if len(values) == 0 {
		return t.remove()
	}

	return t.write(values)
}

func (t *FileTier) remove() error {
	err := os.Remove(t.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials file: %w", err)
	}
	return nil
}

func (t *FileTier) read() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(t.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return values, nil
	case err != nil:
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("%w: %w", errCorruptedFile, err)
	}

	return values, nil
}

func (t *FileTier) write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	tmpPath := t.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, credentialsFileMode)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, t.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
