package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/funecosystem/angel-ai/internal/auth"
	"github.com/funecosystem/angel-ai/internal/config"
	"github.com/funecosystem/angel-ai/internal/engine"
	"github.com/funecosystem/angel-ai/internal/fetcher"
	"github.com/funecosystem/angel-ai/internal/services"
	"github.com/funecosystem/angel-ai/internal/storage/sqlite"
	"github.com/funecosystem/angel-ai/pkg/types"
	"github.com/funecosystem/angel-ai/web/handlers"
)

type testServer struct {
	baseURL string
	store   *sqlite.Store
	chat    *services.ChatService
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng, err := engine.New()
	require.NoError(t, err)

	tokens, err := auth.NewManager("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)

	fetch := fetcher.New(5 * time.Second)
	authService := services.NewAuthService(store, tokens)
	chatService := services.NewChatService(store, eng, nil, 0)
	knowledgeService := services.NewKnowledgeService(store, fetch)
	settingsService := services.NewSettingsService(store, services.PersonaSettings{Name: "Angel AI"})

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.RateLimitRPS = 1000
	cfg.Server.RateLimitBurst = 1000

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	addr, hub := Start(ctx, cfg, Deps{
		Auth:      authService,
		Chat:      chatService,
		Knowledge: knowledgeService,
		Settings:  settingsService,
		Fetcher:   fetch,
	})
	chatService.SetBroadcaster(hub)

	return &testServer{baseURL: "http://" + addr, store: store, chat: chatService}
}

// do issues a JSON request; token may be empty for anonymous calls.
func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.baseURL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type sessionResponse struct {
	User  *types.User `json:"user"`
	Token string      `json:"token"`
}

func (ts *testServer) register(t *testing.T, email string) sessionResponse {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[sessionResponse](t, resp)
}

func (ts *testServer) registerAdmin(t *testing.T, email string) sessionResponse {
	t.Helper()
	session := ts.register(t, email)
	_, err := ts.store.GetDB().Exec("UPDATE users SET is_admin = 1 WHERE id = ?", session.User.ID)
	require.NoError(t, err)
	return session
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/health", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"status":"healthy"`)
	assert.Contains(t, string(body), `"fetcher_circuit":"closed"`)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestAuthRequired(t *testing.T) {
	ts := startTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/conversations", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/conversations", "bogus-token", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterLoginAndMe(t *testing.T) {
	ts := startTestServer(t)

	session := ts.register(t, "be@example.com")
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "be@example.com", session.User.Email)

	// Duplicate registration conflicts.
	resp := ts.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "be@example.com", "password": "password123",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "be@example.com", "password": "password123",
	})
	login := decode[sessionResponse](t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	me := decode[types.User](t, resp)
	assert.Equal(t, session.User.ID, me.ID)

	resp = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "be@example.com", "password": "wrong",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatFlow(t *testing.T) {
	ts := startTestServer(t)
	session := ts.register(t, "be@example.com")

	// First message creates a conversation and gets a name-intro reply.
	resp := ts.do(t, http.MethodPost, "/api/conversations", session.Token, map[string]string{
		"content": "em tên là Mai",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := decode[services.TurnResult](t, resp)
	assert.Equal(t, "em tên là Mai", first.Conversation.Title)
	assert.Contains(t, first.AngelMessage.Content, "Mai")

	// Follow-up in the same conversation uses the stored name.
	resp = ts.do(t, http.MethodPost, "/api/conversations", session.Token, map[string]string{
		"conversation_id": first.Conversation.ID,
		"content":         "con buồn quá",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[services.TurnResult](t, resp)
	assert.Contains(t, second.AngelMessage.Content, "bé Mai")

	// Conversation listing and retrieval.
	resp = ts.do(t, http.MethodGet, "/api/conversations", session.Token, nil)
	convs := decode[[]*types.Conversation](t, resp)
	require.Len(t, convs, 1)

	resp = ts.do(t, http.MethodGet, "/api/conversations/"+first.Conversation.ID, session.Token, nil)
	detail := decode[struct {
		Conversation *types.Conversation `json:"conversation"`
		Messages     []*types.Message    `json:"messages"`
	}](t, resp)
	assert.Len(t, detail.Messages, 4)

	// Editing the second user message truncates and replays.
	resp = ts.do(t, http.MethodPatch, "/api/messages/"+second.UserMessage.ID, session.Token, map[string]string{
		"content": "làm sao để kiếm tiền",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	edited := decode[services.TurnResult](t, resp)
	assert.Contains(t, edited.AngelMessage.Content, "thịnh vượng 5D")

	// Rename and delete.
	resp = ts.do(t, http.MethodPatch, "/api/conversations/"+first.Conversation.ID, session.Token, map[string]string{
		"title": "Tâm sự",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/api/conversations/"+first.Conversation.ID, session.Token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/conversations/"+first.Conversation.ID, session.Token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConversationIsolation(t *testing.T) {
	ts := startTestServer(t)
	owner := ts.register(t, "owner@example.com")
	intruder := ts.register(t, "intruder@example.com")

	resp := ts.do(t, http.MethodPost, "/api/conversations", owner.Token, map[string]string{
		"content": "xin chào",
	})
	first := decode[services.TurnResult](t, resp)

	resp = ts.do(t, http.MethodGet, "/api/conversations/"+first.Conversation.ID, intruder.Token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPersonaGreeting(t *testing.T) {
	ts := startTestServer(t)
	session := ts.register(t, "be@example.com")

	resp := ts.do(t, http.MethodGet, "/api/persona/greeting", session.Token, nil)
	body := decode[struct {
		Greeting string `json:"greeting"`
	}](t, resp)
	assert.Contains(t, body.Greeting, "Angel đây ạ")
}

func TestKnowledgeRequiresAdmin(t *testing.T) {
	ts := startTestServer(t)
	user := ts.register(t, "user@example.com")
	admin := ts.registerAdmin(t, "admin@example.com")

	resp := ts.do(t, http.MethodGet, "/api/knowledge", user.Token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/knowledge", admin.Token, map[string]any{
		"title":   "Lời dạy",
		"content": "Yêu thương vô điều kiện",
		"tags":    []string{"tình thương"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	doc := decode[types.KnowledgeDoc](t, resp)
	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, 12, doc.EnergyLevel)

	resp = ts.do(t, http.MethodPut, "/api/knowledge/"+doc.ID, admin.Token, map[string]any{
		"title":   "Lời dạy",
		"content": "Ánh sáng dẫn đường",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = ts.do(t, http.MethodGet, "/api/knowledge/"+doc.ID, admin.Token, nil)
	updated := decode[types.KnowledgeDoc](t, resp)
	assert.Equal(t, "Ánh sáng dẫn đường", updated.Content)

	resp = ts.do(t, http.MethodDelete, "/api/knowledge/"+doc.ID, admin.Token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestPersonaSettingsRequiresAdmin(t *testing.T) {
	ts := startTestServer(t)
	user := ts.register(t, "user@example.com")
	admin := ts.registerAdmin(t, "admin@example.com")

	resp := ts.do(t, http.MethodGet, "/api/settings/persona", user.Token, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/settings/persona", admin.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	settings := decode[services.PersonaSettings](t, resp)
	assert.Equal(t, "Angel AI", settings.Name)

	resp = ts.do(t, http.MethodPut, "/api/settings/persona", admin.Token, map[string]string{
		"name": "Thiên Thần",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	settings = decode[services.PersonaSettings](t, resp)
	assert.Equal(t, "Thiên Thần", settings.Name)
}

func TestFetchURLEndpoint(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Trang</title></head><body><main>nội dung</main></body></html>`))
	}))
	defer target.Close()

	ts := startTestServer(t)
	session := ts.register(t, "be@example.com")

	resp := ts.do(t, http.MethodPost, "/api/fetch-url", session.Token, map[string]string{
		"url": target.URL,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Success bool   `json:"success"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}](t, resp)
	assert.True(t, body.Success)
	assert.Equal(t, "Trang", body.Title)
	assert.Equal(t, "nội dung", body.Content)

	// Missing URL is a client error, not a server error.
	resp = ts.do(t, http.MethodPost, "/api/fetch-url", session.Token, map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketRealtime(t *testing.T) {
	ts := startTestServer(t)
	session := ts.register(t, "be@example.com")

	// Start a conversation so there is something to subscribe to.
	resp := ts.do(t, http.MethodPost, "/api/conversations", session.Token, map[string]string{
		"content": "xin chào",
	})
	first := decode[services.TurnResult](t, resp)
	convID := first.Conversation.ID

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.baseURL, "http") + "/ws?token=" + session.Token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	err = conn.Write(ctx, websocket.MessageText,
		[]byte(fmt.Sprintf(`{"action":"subscribe","conversation_id":%q}`, convID)))
	require.NoError(t, err)

	// Give the subscription a moment to land before triggering events.
	time.Sleep(100 * time.Millisecond)

	resp = ts.do(t, http.MethodPost, "/api/conversations", session.Token, map[string]string{
		"conversation_id": convID,
		"content":         "con biết ơn Angel",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Expect at least the user message and the reply among the events.
	seen := map[string]int{}
	for i := 0; i < 4; i++ {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var event handlers.Event
		require.NoError(t, json.Unmarshal(data, &event))
		assert.Equal(t, convID, event.ConversationID)
		seen[event.Type]++
	}
	assert.Equal(t, 2, seen[handlers.EventMessageCreated])
	assert.GreaterOrEqual(t, seen[handlers.EventTyping], 2)
}

func TestWebSocketRejectsAnonymous(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.baseURL, "http") + "/ws"
	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
