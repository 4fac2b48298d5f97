// Package tracker persists runner state to disk so external tools can read
// what each controller is doing, and keeps one runner per state directory.
package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Writer owns the files in one state directory.
type Writer struct {
	Dir          string
	RunStatePath string
	LockPath     string
}

func NewWriter(dir string) *Writer {
	return &Writer{
		Dir:          dir,
		RunStatePath: filepath.Join(dir, "state.json"),
		LockPath:     filepath.Join(dir, ".refetch_lock"),
	}
}

func (w *Writer) WriteRunState(s RunState) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return writeJSONAtomic(w.RunStatePath, s)
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
