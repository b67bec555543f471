// Package store persists per-tool metric documents as JSON files on the
// local filesystem. Every write is a read-merge-write cycle guarded by a
// per-tool lock, so points recorded in a previous process lifetime are
// retained until the retention policy prunes them.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/quaere-ai/toolrelay/internal/metrics"
)

const documentSuffix = "_metrics.json"

// DocumentStore stores one JSON document per tool in a base directory.
// Documents for different tools are written independently and
// concurrently; writes for the same tool are serialised.
type DocumentStore struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a DocumentStore rooted at baseDir, creating the directory
// if it does not exist.
func New(baseDir string) (*DocumentStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory cannot be empty")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	return &DocumentStore{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// BaseDir returns the directory documents are stored in.
func (s *DocumentStore) BaseDir() string {
	return s.baseDir
}

// lockFor returns the mutex serialising writes for one tool, creating
// it on first use.
func (s *DocumentStore) lockFor(toolName string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[toolName]
	if !ok {
		l = &sync.Mutex{}
		s.locks[toolName] = l
	}
	return l
}

func (s *DocumentStore) path(toolName string) (string, error) {
	if toolName == "" {
		return "", fmt.Errorf("tool name cannot be empty")
	}
	filename := toolName + documentSuffix
	if filepath.Base(filename) != filename {
		return "", fmt.Errorf("tool name cannot contain path separators")
	}
	return filepath.Join(s.baseDir, filename), nil
}

// Load reads the persisted document for a tool. A missing document is
// not an error: it returns an empty document for the tool.
func (s *DocumentStore) Load(toolName string) (*metrics.Document, error) {
	path, err := s.path(toolName)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &metrics.Document{ToolName: toolName, Metrics: map[string]metrics.SeriesDocument{}}, nil
		}
		return nil, fmt.Errorf("failed to read metrics document for %s: %w", toolName, err)
	}

	doc, err := metrics.DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("metrics document for %s is corrupt: %w", toolName, err)
	}
	return doc, nil
}

// Save merges doc into any existing document for the tool and writes the
// result back. The per-tool lock covers the whole load-merge-write
// cycle so concurrent saves cannot interleave and corrupt the file.
func (s *DocumentStore) Save(doc *metrics.Document) error {
	if doc == nil {
		return fmt.Errorf("document cannot be nil")
	}
	path, err := s.path(doc.ToolName)
	if err != nil {
		return err
	}

	lock := s.lockFor(doc.ToolName)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.Load(doc.ToolName)
	if err != nil {
		// A corrupt document cannot be merged; start over rather than
		// losing the fresh points too.
		existing = &metrics.Document{ToolName: doc.ToolName, Metrics: map[string]metrics.SeriesDocument{}}
	}
	existing.ToolName = doc.ToolName
	existing.Merge(doc)

	data, err := existing.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metrics document for %s: %w", doc.ToolName, err)
	}
	return nil
}

// Prune rewrites the tool's document with every point older than cutoff
// removed and returns the number of points dropped. Pruning a missing
// document is a no-op.
func (s *DocumentStore) Prune(toolName string, cutoff time.Time) (int, error) {
	path, err := s.path(toolName)
	if err != nil {
		return 0, err
	}

	lock := s.lockFor(toolName)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read metrics document for %s: %w", toolName, err)
	}

	doc, err := metrics.DecodeDocument(data)
	if err != nil {
		return 0, fmt.Errorf("metrics document for %s is corrupt: %w", toolName, err)
	}

	dropped := doc.Prune(cutoff)
	if dropped == 0 {
		return 0, nil
	}

	encoded, err := doc.Encode()
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return 0, fmt.Errorf("failed to rewrite metrics document for %s: %w", toolName, err)
	}
	return dropped, nil
}

// ListTools returns the names of every tool with a persisted document.
func (s *DocumentStore) ListTools() ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics directory: %w", err)
	}
	var tools []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, documentSuffix) {
			continue
		}
		tools = append(tools, strings.TrimSuffix(name, documentSuffix))
	}
	return tools, nil
}

// Delete removes the tool's document. Deleting a missing document is a
// no-op.
func (s *DocumentStore) Delete(toolName string) error {
	path, err := s.path(toolName)
	if err != nil {
		return err
	}

	lock := s.lockFor(toolName)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete metrics document for %s: %w", toolName, err)
	}
	return nil
}
