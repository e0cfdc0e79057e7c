package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var errStoreFileIsDir = errors.New("store file is dir")

type fileEntry struct {
	Data   []byte    `json:"data"`
	Expiry time.Time `json:"expiry"`
}

// FileBackend is a device-local key-value file. Every call reads the file
// and every write replaces it through a rename, nothing is cached.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (f *FileBackend) Find(token string) ([]byte, bool, error) {
	return f.FindCtx(context.Background(), token)
}

func (f *FileBackend) Commit(token string, b []byte, expiry time.Time) error {
	return f.CommitCtx(context.Background(), token, b, expiry)
}

func (f *FileBackend) Delete(token string) error {
	return f.DeleteCtx(context.Background(), token)
}

func (f *FileBackend) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.readfile()
	if err != nil {
		return nil, false, err
	}
	e, ok := entries[token]
	if !ok || !time.Now().Before(e.Expiry) {
		return nil, false, nil
	}
	return e.Data, true, nil
}

func (f *FileBackend) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	return f.update(ctx, func(entries map[string]fileEntry) {
		entries[token] = fileEntry{Data: b, Expiry: expiry}
	})
}

func (f *FileBackend) DeleteCtx(ctx context.Context, token string) error {
	return f.update(ctx, func(entries map[string]fileEntry) {
		delete(entries, token)
	})
}

func (f *FileBackend) update(ctx context.Context, fn func(map[string]fileEntry)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.readfile()
	if err != nil {
		return err
	}
	fn(entries)

	now := time.Now()
	for k, e := range entries {
		if !now.Before(e.Expiry) {
			delete(entries, k)
		}
	}
	return f.writefile(entries)
}

func (f *FileBackend) readfile() (map[string]fileEntry, error) {
	entries := map[string]fileEntry{}

	finfo, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, err
	}
	if finfo.IsDir() {
		return nil, errStoreFileIsDir
	}

	b, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return entries, nil
}

func (f *FileBackend) writefile(entries map[string]fileEntry) error {
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
