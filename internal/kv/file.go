package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	fileMode        = 0o600
	dirMode         = 0o700
	tempFilePattern = ".local-*.toml.tmp"
)

type fileSchema struct {
	Entries map[string]string `toml:"entries"`
}

// File is a Store persisted as a single TOML document. Every Set rewrites the
// whole file through a temp file and rename.
type File struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*File)(nil)

// NewFile creates a store at path. The file is created on first Set.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("local store path is empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve local store path: %w", err)
	}
	return &File{path: filepath.Clean(absPath)}, nil
}

// Path returns the backing file location.
func (f *File) Path() string {
	return f.path
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := f.read()
	if err != nil {
		return "", false, err
	}
	v, ok := file.Entries[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := f.read()
	if err != nil {
		return err
	}
	file.Entries[key] = value
	return f.write(file)
}

func (f *File) read() (fileSchema, error) {
	file := fileSchema{Entries: map[string]string{}}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return file, nil
		}
		return file, fmt.Errorf("read local store: %w", err)
	}

	if err := toml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("decode local store: %w", err)
	}
	if file.Entries == nil {
		file.Entries = map[string]string{}
	}
	return file, nil
}

func (f *File) write(file fileSchema) error {
	if err := os.MkdirAll(filepath.Dir(f.path), dirMode); err != nil {
		return fmt.Errorf("create local store directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode local store: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(f.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp local store: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp local store: %w", err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp local store: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp local store: %w", err)
	}
	if err := os.Rename(tempName, f.path); err != nil {
		return fmt.Errorf("replace local store: %w", err)
	}
	cleanup = false

	return nil
}
