package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultchat/vaultchat/internal/config"
	"github.com/vaultchat/vaultchat/internal/conversation"
	"github.com/vaultchat/vaultchat/internal/event"
	"github.com/vaultchat/vaultchat/internal/export"
	"github.com/vaultchat/vaultchat/internal/knowledge"
	"github.com/vaultchat/vaultchat/internal/mode"
	"github.com/vaultchat/vaultchat/internal/permission"
	"github.com/vaultchat/vaultchat/internal/provider"
	"github.com/vaultchat/vaultchat/internal/storage"
	"github.com/vaultchat/vaultchat/internal/stream"
	"github.com/vaultchat/vaultchat/internal/token"
	"github.com/vaultchat/vaultchat/pkg/types"
)

// newTestServer wires a full server over temp storage, one temp vault, and
// the echo provider.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	vaultDir := t.TempDir()
	appCfg := config.Default()
	appCfg.Vaults = map[string]string{"notes": vaultDir}

	store := storage.New(t.TempDir())
	bus := event.NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	convs := conversation.NewService(store, bus)
	modes, err := mode.NewRegistry("")
	require.NoError(t, err)

	streamCfg := stream.Config{
		MinChunkSize:         10,
		MaxDelay:             time.Hour,
		RetryAttempts:        3,
		RetryDelay:           time.Millisecond,
		CompleteCleanupDelay: time.Minute,
		AbortCleanupDelay:    time.Minute,
	}

	services := &Services{
		AppConfig:     appCfg,
		Bus:           bus,
		Conversations: convs,
		Knowledge:     knowledge.NewService(appCfg.Vaults, bus),
		Permissions:   permission.NewManager(store, bus),
		Tokens:        token.NewEstimator(),
		Modes:         modes,
		Export:        export.NewService(appCfg.Vaults, convs),
		Provider:      provider.NewEchoProvider(),
		Controller:    stream.NewController(streamCfg, stream.NewRegistry()),
	}

	return New(DefaultConfig(), services), vaultDir
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, rec).Error.Code
}

func createConversation(t *testing.T, srv *Server, title, modeName string) *types.Conversation {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/conversation", CreateConversationRequest{Title: title, Mode: modeName})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[*types.Conversation](t, rec)
}

func TestConversationLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/conversation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String(), "empty list is an array, not null")

	conv := createConversation(t, srv, "Planning", "research")
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "research", conv.Mode)

	rec = doJSON(t, srv, http.MethodGet, "/conversation/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, conv.ID, decode[*types.Conversation](t, rec).ID)

	rec = doJSON(t, srv, http.MethodDelete, "/conversation/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/conversation/"+conv.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, errorCode(t, rec))
}

func TestCreateConversationUnknownMode(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/conversation", CreateConversationRequest{Mode: "nonsense"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeInvalidRequest, errorCode(t, rec))
}

func TestSendMessageStreamsEchoReply(t *testing.T) {
	srv, _ := newTestServer(t)
	conv := createConversation(t, srv, "", "general")

	rec := doJSON(t, srv, http.MethodPost, "/conversation/"+conv.ID+"/message",
		SendMessageRequest{Content: "hello there"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	resp := decode[SendMessageResponse](t, rec)
	assert.NotEmpty(t, resp.SessionID)
	require.NotNil(t, resp.Message)
	assert.Equal(t, "user", resp.Message.Role)
	assert.Equal(t, "hello there", resp.Message.Content)

	// The assistant reply is persisted when the background run finishes.
	var msgs []*types.Message
	require.Eventually(t, func() bool {
		rec := doJSON(t, srv, http.MethodGet, "/conversation/"+conv.ID+"/message", nil)
		if rec.Code != http.StatusOK {
			return false
		}
		msgs = decode[[]*types.Message](t, rec)
		return len(msgs) == 2
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "> hello there")
	assert.Greater(t, msgs[1].TokensUsed, 0)
}

// capturingProvider records the completion request before delegating to the
// echo provider.
type capturingProvider struct {
	*provider.EchoProvider

	mu   sync.Mutex
	last *provider.CompletionRequest
}

func (p *capturingProvider) CreateCompletion(ctx context.Context, req *provider.CompletionRequest) (*provider.CompletionStream, error) {
	p.mu.Lock()
	p.last = req
	p.mu.Unlock()
	return p.EchoProvider.CreateCompletion(ctx, req)
}

func (p *capturingProvider) lastRequest() *provider.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func TestSendMessagePassesAllowedTools(t *testing.T) {
	srv, _ := newTestServer(t)
	capturing := &capturingProvider{EchoProvider: provider.NewEchoProvider()}
	srv.services.Provider = capturing

	// Grant web search globally so research mode's webSearch survives the
	// intersection.
	rec := doJSON(t, srv, http.MethodPut, "/permissions",
		types.Permissions{WebSearch: true, VaultSearch: true, ReadFiles: true})
	require.Equal(t, http.StatusOK, rec.Code)

	conv := createConversation(t, srv, "", "research")
	rec = doJSON(t, srv, http.MethodPost, "/conversation/"+conv.ID+"/message",
		SendMessageRequest{Content: "look this up"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var req *provider.CompletionRequest
	require.Eventually(t, func() bool {
		req = capturing.lastRequest()
		return req != nil
	}, 5*time.Second, 10*time.Millisecond)

	assert.Contains(t, req.AllowedTools, "WebSearch")
	assert.Contains(t, req.AllowedTools, "Read")
	assert.NotContains(t, req.AllowedTools, "Write")
	assert.NotContains(t, req.AllowedTools, "Bash")
}

func TestSendMessageValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	conv := createConversation(t, srv, "", "")

	rec := doJSON(t, srv, http.MethodPost, "/conversation/"+conv.ID+"/message",
		SendMessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/conversation/missing/message",
		SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageConflictWhileStreaming(t *testing.T) {
	srv, _ := newTestServer(t)
	conv := createConversation(t, srv, "", "")

	srv.setActive(conv.ID, "some-session")
	defer srv.clearActive(conv.ID, "some-session")

	rec := doJSON(t, srv, http.MethodPost, "/conversation/"+conv.ID+"/message",
		SendMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ErrCodeConflict, errorCode(t, rec))
}

func TestAbortConversationWithoutStream(t *testing.T) {
	srv, _ := newTestServer(t)
	conv := createConversation(t, srv, "", "")

	rec := doJSON(t, srv, http.MethodPost, "/conversation/"+conv.ID+"/abort", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/stream", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, "/stream/unknown/status", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Registered sessions report their phase.
	_, err := srv.services.Controller.StartSession(context.Background(), "sess-1", stream.SinkFunc(
		func(ctx context.Context, name string, payload any) error { return nil }))
	require.NoError(t, err)

	rec = doJSON(t, srv, http.MethodGet, "/stream/sess-1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[stream.Summary](t, rec)
	assert.Equal(t, "sess-1", sum.SessionID)
	assert.Equal(t, stream.PhaseThinking, sum.Phase)
}

func TestPermissionsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/permissions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	perms := decode[types.Permissions](t, rec)
	assert.False(t, perms.WebSearch)
	assert.True(t, perms.VaultSearch)

	rec = doJSON(t, srv, http.MethodPut, "/permissions",
		types.Permissions{WriteFiles: true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, ErrCodePermissionDenied, errorCode(t, rec))

	rec = doJSON(t, srv, http.MethodPut, "/permissions",
		types.Permissions{WebSearch: true, VaultSearch: true, ReadFiles: true})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[types.Permissions](t, rec)
	assert.True(t, updated.WebSearch)
	assert.False(t, updated.WriteFiles)
}

func TestKnowledgeEndpoints(t *testing.T) {
	srv, vaultDir := newTestServer(t)

	note := filepath.Join(vaultDir, "garden", "soil.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(note), 0o755))
	require.NoError(t, os.WriteFile(note, []byte("# Soil\n\nCompost improves soil structure.\n"), 0o644))

	rec := doJSON(t, srv, http.MethodPost, "/knowledge/reindex", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[map[string]int](t, rec)["files"])

	rec = doJSON(t, srv, http.MethodGet, "/knowledge/search?q=compost", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[[]types.KnowledgeResult](t, rec)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Snippet, "Compost")

	rec = doJSON(t, srv, http.MethodGet, "/knowledge/note?path="+url.QueryEscape(results[0].Path), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["content"], "Compost improves")

	rec = doJSON(t, srv, http.MethodGet, "/knowledge/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/knowledge/search?q=x&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTokenEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/token/estimate",
		EstimateRequest{Text: "a short sentence of plain words"})
	require.Equal(t, http.StatusOK, rec.Code)
	est := decode[types.TokenEstimate](t, rec)
	assert.Greater(t, est.Tokens, 0)
	assert.Equal(t, 31, est.Characters)

	conv := createConversation(t, srv, "", "")
	rec = doJSON(t, srv, http.MethodGet, "/token/conversation/"+conv.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/token/conversation/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModeAndConfigEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/mode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	modes := decode[[]types.Mode](t, rec)
	require.NotEmpty(t, modes)
	assert.Equal(t, "general", modes[0].Name)

	rec = doJSON(t, srv, http.MethodGet, "/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode[map[string]any](t, rec)
	assert.Equal(t, "anthropic/claude-sonnet-4-20250514", cfg["model"])
	assert.Contains(t, cfg["vaults"], "notes")
}

func TestExportEndpoint(t *testing.T) {
	srv, vaultDir := newTestServer(t)
	conv := createConversation(t, srv, "Notes export", "")

	rec := doJSON(t, srv, http.MethodPost, "/conversation/"+conv.ID+"/export", ExportRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/conversation/"+conv.ID+"/export",
		ExportRequest{Vault: "notes"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	path := decode[map[string]string](t, rec)["path"]
	assert.True(t, strings.HasPrefix(path, vaultDir))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestAttachKnowledgeEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	conv := createConversation(t, srv, "", "")

	rec := doJSON(t, srv, http.MethodPost, "/conversation/"+conv.ID+"/knowledge",
		AttachKnowledgeRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/conversation/"+conv.ID+"/knowledge",
		AttachKnowledgeRequest{Paths: []string{"garden/soil.md"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"garden/soil.md"}, decode[*types.Conversation](t, rec).Knowledge)
}
