// Package prompts fetches templated prompts. The primary source is a
// remote prompt service keyed by path-derived names; local files under the
// prompts root serve as fallback. Local reads are cached for the process
// lifetime, remote reads for a short TTL.
package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrPromptNotFound is returned when neither the remote service nor the
// local tree can supply the requested prompt, or the path is invalid.
var ErrPromptNotFound = errors.New("prompt not found")

// remoteTTL bounds how long a remote prompt is served from cache.
const remoteTTL = 60 * time.Second

// Provenance records which source supplied a prompt.
type Provenance string

const (
	SourceRemote Provenance = "remote"
	SourceLocal  Provenance = "local"
)

// RemoteClient fetches managed prompts by name. The remote service uses
// double-brace variable syntax; FetchPrompt returns the raw template.
type RemoteClient interface {
	FetchPrompt(ctx context.Context, name string) (string, error)
}

type remoteEntry struct {
	text      string
	fetchedAt time.Time
}

// Store loads prompt templates and substitutes variables.
type Store struct {
	root   string
	remote RemoteClient

	mu          sync.RWMutex
	localCache  map[string]string
	remoteCache map[string]remoteEntry

	now func() time.Time
}

// NewStore creates a prompt store rooted at dir. remote may be nil, in
// which case only local files are consulted.
func NewStore(dir string, remote RemoteClient) *Store {
	return &Store{
		root:        dir,
		remote:      remote,
		localCache:  make(map[string]string),
		remoteCache: make(map[string]remoteEntry),
		now:         time.Now,
	}
}

// Load fetches the prompt identified by a hierarchical path such as
// "policy_analysis/coverage_assessment" and substitutes variables by
// literal {name} replacement. Non-scalar values are JSON-encoded before
// substitution.
func (s *Store) Load(ctx context.Context, path string, variables map[string]any) (string, Provenance, error) {
	if err := validatePath(path); err != nil {
		return "", "", err
	}

	text, provenance, err := s.fetch(ctx, path)
	if err != nil {
		return "", "", err
	}
	return substitute(text, variables), provenance, nil
}

func (s *Store) fetch(ctx context.Context, path string) (string, Provenance, error) {
	if s.remote != nil {
		if text, ok := s.cachedRemote(path); ok {
			return text, SourceRemote, nil
		}
		name := remoteName(path)
		text, err := s.remote.FetchPrompt(ctx, name)
		if err == nil {
			// Remote templates use {{name}}; normalize to local syntax.
			text = strings.ReplaceAll(strings.ReplaceAll(text, "{{", "{"), "}}", "}")
			s.mu.Lock()
			s.remoteCache[path] = remoteEntry{text: text, fetchedAt: s.now()}
			s.mu.Unlock()
			return text, SourceRemote, nil
		}
		slog.Warn("Remote prompt fetch failed, falling back to local",
			"prompt", path, "error", err)
	}

	text, err := s.loadLocal(path)
	if err != nil {
		return "", "", err
	}
	return text, SourceLocal, nil
}

func (s *Store) cachedRemote(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.remoteCache[path]
	if !ok || s.now().Sub(entry.fetchedAt) > remoteTTL {
		return "", false
	}
	return entry.text, true
}

func (s *Store) loadLocal(path string) (string, error) {
	s.mu.RLock()
	cached, ok := s.localCache[path]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	full := filepath.Join(s.root, filepath.FromSlash(path)+".txt")
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrPromptNotFound, path)
		}
		return "", fmt.Errorf("read prompt %s: %w", path, err)
	}

	text := string(data)
	s.mu.Lock()
	s.localCache[path] = text
	s.mu.Unlock()
	return text, nil
}

// validatePath rejects absolute paths and traversal attempts.
func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") || strings.Contains(path, "..") {
		return fmt.Errorf("%w: invalid path %q", ErrPromptNotFound, path)
	}
	return nil
}

// remoteName derives the remote service key from the hierarchical path:
// "policy_analysis/coverage_assessment" → "policy_analysis-coverage_assessment".
func remoteName(path string) string {
	return strings.ReplaceAll(path, "/", "-")
}

// substitute replaces {name} placeholders. Scalars format with %v; anything
// else is JSON-encoded so structured context embeds cleanly.
func substitute(text string, variables map[string]any) string {
	for name, value := range variables {
		text = strings.ReplaceAll(text, "{"+name+"}", renderValue(value))
	}
	return text
}

func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprintf("%v", v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
