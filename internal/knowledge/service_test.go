package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeNote(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newVault(t *testing.T) (string, *Service) {
	t.Helper()
	dir := t.TempDir()
	return dir, NewService(map[string]string{"main": dir}, nil)
}

func TestReindexFindsMarkdownOnly(t *testing.T) {
	dir, svc := newVault(t)

	writeNote(t, dir, "plants/ficus.md", "# Ficus care\nWater weekly.")
	writeNote(t, dir, "deep/nested/tree/note.md", "nested")
	writeNote(t, dir, "ignore.txt", "not a note")

	count, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSearchRanksByMatches(t *testing.T) {
	dir, svc := newVault(t)

	writeNote(t, dir, "ficus.md", "ficus ficus ficus everywhere, a ficus forest")
	writeNote(t, dir, "misc.md", "one ficus mention only")
	writeNote(t, dir, "unrelated.md", "nothing relevant here")

	results, err := svc.Search(context.Background(), "ficus", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ficus", results[0].Title)
	assert.Greater(t, results[0].Matches, results[1].Matches)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.NotEmpty(t, results[0].Snippet)
}

func TestSearchCaseInsensitive(t *testing.T) {
	dir, svc := newVault(t)
	writeNote(t, dir, "note.md", "The FICUS is thriving")

	results, err := svc.Search(context.Background(), "Ficus", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchLimit(t *testing.T) {
	dir, svc := newVault(t)
	for _, name := range []string{"a.md", "b.md", "c.md", "d.md"} {
		writeNote(t, dir, name, "shared keyword inside")
	}

	results, err := svc.Search(context.Background(), "keyword", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchEmptyQuery(t *testing.T) {
	_, svc := newVault(t)

	results, err := svc.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestTitleProximityBreaksTies(t *testing.T) {
	dir, svc := newVault(t)

	writeNote(t, dir, "gardening.md", "ficus appears once")
	writeNote(t, dir, "ficus.md", "ficus appears once")

	results, err := svc.Search(context.Background(), "ficus", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "ficus", results[0].Title, "exact title match wins the tie")
}

func TestReadOnlyIndexedPaths(t *testing.T) {
	dir, svc := newVault(t)

	path := writeNote(t, dir, "note.md", "note content")
	outside := filepath.Join(t.TempDir(), "secret.md")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))

	content, err := svc.Read(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "note content", content)

	_, err = svc.Read(context.Background(), outside)
	assert.Error(t, err, "files outside the index are rejected")
}

func TestSnippetWindow(t *testing.T) {
	long := "aaaa bbbb cccc needle dddd eeee"
	s := snippet(long, 15)
	assert.Contains(t, s, "needle")

	full := snippet("short needle text", 6)
	assert.Equal(t, "short needle text", full, "short content is returned whole")
}

func TestSnippetKeepsRunesWhole(t *testing.T) {
	// Multi-byte runes on both sides of the match put the window edges
	// mid-rune unless they are clamped.
	content := strings.Repeat("语", 40) + "needle" + strings.Repeat("语", 40)
	s := snippet(content, strings.Index(content, "needle"))

	assert.Contains(t, s, "needle")
	assert.True(t, utf8.ValidString(s), "snippet must be valid UTF-8: %q", s)
}
