package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultchat/vaultchat/internal/storage"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(storage.New(t.TempDir()), nil)
}

func TestCreateAndGet(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "My chat", "research")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "research", conv.Mode)
	assert.Equal(t, conv.Time.Created, conv.Time.Updated)

	got, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	assert.Equal(t, "My chat", got.Title)
}

func TestCreateDefaultsMode(t *testing.T) {
	svc := newService(t)

	conv, err := svc.Create(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "general", conv.Mode)
}

func TestGetMissing(t *testing.T) {
	svc := newService(t)

	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "first", "")
	require.NoError(t, err)
	second, err := svc.Create(ctx, "second", "")
	require.NoError(t, err)

	convs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, second.ID, convs[0].ID)
	assert.Equal(t, first.ID, convs[1].ID)
}

func TestListRecentlyUpdatedFirst(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	old, err := svc.Create(ctx, "old thread", "")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "new thread", "")
	require.NoError(t, err)

	// A new message in the older conversation moves it to the top.
	time.Sleep(2 * time.Millisecond)
	_, err = svc.AddMessage(ctx, old.ID, "user", "picking this back up", 4)
	require.NoError(t, err)

	convs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, old.ID, convs[0].ID)
}

func TestAddMessageAndAutoTitle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "", "")
	require.NoError(t, err)

	msg, err := svc.AddMessage(ctx, conv.ID, "user", "How   do I water\nmy ficus?", 7)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, msg.ConversationID)
	assert.Equal(t, 7, msg.TokensUsed)

	got, err := svc.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "How do I water my ficus?", got.AutoTitle, "whitespace collapses in the auto title")

	// Later messages do not overwrite the auto title.
	_, err = svc.AddMessage(ctx, conv.ID, "user", "Different question", 2)
	require.NoError(t, err)
	got, _ = svc.Get(ctx, conv.ID)
	assert.Equal(t, "How do I water my ficus?", got.AutoTitle)
}

func TestAutoTitleTruncation(t *testing.T) {
	long := strings.Repeat("word ", 30)
	title := autoTitle(long)
	assert.LessOrEqual(t, len(title), maxAutoTitle+3)
	assert.True(t, strings.HasSuffix(title, "..."))
}

func TestMessagesChronological(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "", "")
	require.NoError(t, err)

	for _, content := range []string{"one", "two", "three"} {
		_, err := svc.AddMessage(ctx, conv.ID, "user", content, 1)
		require.NoError(t, err)
	}

	msgs, err := svc.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "one", msgs[0].Content)
	assert.Equal(t, "three", msgs[2].Content)
}

func TestDeleteRemovesMessages(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "", "")
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, conv.ID, "user", "hello", 1)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, conv.ID))

	_, err = svc.Get(ctx, conv.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	msgs, err := svc.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestAttachKnowledgeDedupes(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "", "")
	require.NoError(t, err)

	_, err = svc.AttachKnowledge(ctx, conv.ID, []string{"notes/a.md", "notes/b.md"})
	require.NoError(t, err)
	got, err := svc.AttachKnowledge(ctx, conv.ID, []string{"notes/b.md", "notes/c.md"})
	require.NoError(t, err)

	assert.Equal(t, []string{"notes/a.md", "notes/b.md", "notes/c.md"}, got.Knowledge)
}
