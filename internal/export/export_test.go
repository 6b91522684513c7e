package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultchat/vaultchat/internal/conversation"
	"github.com/vaultchat/vaultchat/internal/storage"
)

func newFixture(t *testing.T) (*Service, *conversation.Service, string) {
	t.Helper()
	vaultDir := t.TempDir()
	convs := conversation.NewService(storage.New(t.TempDir()), nil)
	svc := NewService(map[string]string{"notes": vaultDir}, convs)
	return svc, convs, vaultDir
}

func TestToInbox(t *testing.T) {
	ctx := context.Background()
	svc, convs, vaultDir := newFixture(t)

	conv, err := convs.Create(ctx, "Garden planning", "general")
	require.NoError(t, err)
	_, err = convs.AddMessage(ctx, conv.ID, "user", "What should I plant in spring?", 8)
	require.NoError(t, err)
	_, err = convs.AddMessage(ctx, conv.ID, "assistant", "Start with peas and radishes.", 12)
	require.NoError(t, err)

	path, err := svc.ToInbox(ctx, conv.ID, "notes")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(vaultDir, "00-INBOX"), filepath.Dir(path))
	base := filepath.Base(path)
	assert.True(t, strings.HasPrefix(base, "[CHAT] "+time.Now().Format("2006-01-02")+"_"), base)
	assert.True(t, strings.HasSuffix(base, ".md"), base)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	note := string(data)

	assert.True(t, strings.HasPrefix(note, "---\ntype: conversation\n"))
	assert.Contains(t, note, "mode: general\n")
	assert.Contains(t, note, "messages: 2\n")
	assert.Contains(t, note, "tokens: 20\n")
	assert.Contains(t, note, "## User (")
	assert.Contains(t, note, "What should I plant in spring?")
	assert.Contains(t, note, "## Assistant (")
	assert.Contains(t, note, "Start with peas and radishes.")
}

func TestToInboxIncludesKnowledge(t *testing.T) {
	ctx := context.Background()
	svc, convs, _ := newFixture(t)

	conv, err := convs.Create(ctx, "Notes", "vault")
	require.NoError(t, err)
	_, err = convs.AttachKnowledge(ctx, conv.ID, []string{"gardening/soil.md"})
	require.NoError(t, err)

	path, err := svc.ToInbox(ctx, conv.ID, "notes")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "knowledge:\n  - \"gardening/soil.md\"\n")
}

func TestToInboxUnknownVault(t *testing.T) {
	ctx := context.Background()
	svc, convs, _ := newFixture(t)

	conv, err := convs.Create(ctx, "Anything", "general")
	require.NoError(t, err)

	_, err = svc.ToInbox(ctx, conv.ID, "missing")
	assert.ErrorContains(t, err, "vault not configured")
}

func TestToInboxMissingVaultDir(t *testing.T) {
	ctx := context.Background()
	convs := conversation.NewService(storage.New(t.TempDir()), nil)
	svc := NewService(map[string]string{"gone": "/nonexistent/vault/dir"}, convs)

	conv, err := convs.Create(ctx, "Anything", "general")
	require.NoError(t, err)

	_, err = svc.ToInbox(ctx, conv.ID, "gone")
	assert.Error(t, err)
}

func TestToInboxUnknownConversation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t)

	_, err := svc.ToInbox(ctx, "nope", "notes")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSafeTitle(t *testing.T) {
	assert.Equal(t, "Garden planning", safeTitle("Garden planning!"))
	assert.Equal(t, "passwdsecret", safeTitle("../passwd/secret"))
	assert.Equal(t, "notes 2024", safeTitle("notes: 2024?"))

	long := strings.Repeat("a", 80)
	assert.Len(t, safeTitle(long), 50)
}
