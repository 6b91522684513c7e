// Package knowledge implements the vault search layer: a linear full-text
// scan over markdown files in the configured vault directories.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/vaultchat/vaultchat/internal/event"
	"github.com/vaultchat/vaultchat/internal/logging"
	"github.com/vaultchat/vaultchat/pkg/types"
)

// notePattern selects the files the index considers.
const notePattern = "**/*.md"

// snippetRadius is how many characters of context surround the first match.
const snippetRadius = 80

// Service indexes and searches the configured vaults.
type Service struct {
	vaults map[string]string
	bus    *event.Bus

	mu    sync.RWMutex
	files []string
}

// NewService creates a knowledge service over the given vault directories
// (name -> root path). bus may be nil.
func NewService(vaults map[string]string, bus *event.Bus) *Service {
	return &Service{vaults: vaults, bus: bus}
}

// Reindex walks every vault and rebuilds the file index. Returns the number
// of indexed files.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	var files []string

	for name, root := range s.vaults {
		matches, err := doublestar.FilepathGlob(filepath.Join(root, notePattern))
		if err != nil {
			return 0, fmt.Errorf("scan vault %s: %w", name, err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	s.mu.Lock()
	s.files = files
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(event.Event{
			Type: event.KnowledgeIndexed,
			Data: event.KnowledgeIndexedData{Files: len(files)},
		})
	}
	logging.Debug().Int("files", len(files)).Msg("vault reindexed")
	return len(files), nil
}

// Files returns the indexed paths, reindexing lazily on first use.
func (s *Service) Files(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	files := s.files
	s.mu.RUnlock()

	if files == nil {
		if _, err := s.Reindex(ctx); err != nil {
			return nil, err
		}
		s.mu.RLock()
		files = s.files
		s.mu.RUnlock()
	}
	return files, nil
}

// Search scans the indexed files for the query terms and returns up to limit
// results ranked by match count, with title proximity as the tie-breaker.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]types.KnowledgeResult, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	files, err := s.Files(ctx)
	if err != nil {
		return nil, err
	}

	var results []types.KnowledgeResult
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		content := string(data)
		lower := strings.ToLower(content)

		matches := 0
		first := -1
		for _, term := range terms {
			n := strings.Count(lower, term)
			if n == 0 {
				continue
			}
			matches += n
			if idx := strings.Index(lower, term); first < 0 || idx < first {
				first = idx
			}
		}
		if matches == 0 {
			continue
		}

		title := noteTitle(path)
		results = append(results, types.KnowledgeResult{
			Path:    path,
			Title:   title,
			Snippet: snippet(content, first),
			Matches: matches,
			Score:   score(matches, query, title),
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Read returns the content of an indexed file. Paths outside the index are
// rejected so the endpoint cannot be used to read arbitrary files.
func (s *Service) Read(ctx context.Context, path string) (string, error) {
	files, err := s.Files(ctx)
	if err != nil {
		return "", err
	}

	i := sort.SearchStrings(files, path)
	if i >= len(files) || files[i] != path {
		return "", fmt.Errorf("not in vault index: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// score ranks a hit by its match count, using edit distance between the
// query and the note title to break ties in favor of closely named notes.
func score(matches int, query, title string) float64 {
	dist := levenshtein.ComputeDistance(strings.ToLower(query), strings.ToLower(title))
	return float64(matches) + 1.0/float64(1+dist)
}

// snippet extracts a window of content around the first match.
func snippet(content string, at int) string {
	if at < 0 {
		at = 0
	}
	start := at - snippetRadius
	if start < 0 {
		start = 0
	}
	end := at + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	// Never cut a multi-byte rune at the window edges.
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	for end < len(content) && !utf8.RuneStart(content[end]) {
		end++
	}

	text := strings.Join(strings.Fields(content[start:end]), " ")
	if start > 0 {
		text = "..." + text
	}
	if end < len(content) {
		text += "..."
	}
	return text
}

// noteTitle derives a display title from a note's file name.
func noteTitle(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
