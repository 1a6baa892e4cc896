package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/smartchef/smartchef/internal/agent"
	"github.com/smartchef/smartchef/internal/ai"
	"github.com/smartchef/smartchef/internal/chat"
	"github.com/smartchef/smartchef/internal/config"
	"github.com/smartchef/smartchef/internal/httpapi"
	"github.com/smartchef/smartchef/internal/models"
	"github.com/smartchef/smartchef/internal/recipemd"
)

type scriptedOrchestrator struct {
	reply  string
	events []agent.Event
}

func (o *scriptedOrchestrator) Chat(ctx context.Context, message string, history []ai.Message) string {
	return o.reply
}

func (o *scriptedOrchestrator) StreamChat(ctx context.Context, message string, history []ai.Message, includeImages bool) <-chan agent.Event {
	out := make(chan agent.Event, len(o.events))
	go func() {
		defer close(out)
		for _, ev := range o.events {
			out <- ev
		}
	}()
	return out
}

type healthyRecipes struct{ healthy bool }

func (h healthyRecipes) CheckHealth(ctx context.Context) bool { return h.healthy }

func newTestRouter(t *testing.T, orch chat.Orchestrator, healthy bool) *gin.Engine {
	t.Helper()
	r, _ := newTestRouterDB(t, orch, healthy)
	return r
}

func newTestRouterDB(t *testing.T, orch chat.Orchestrator, healthy bool) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &chat.Session{}, &chat.Message{}, &chat.Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	cfg := config.Config{JWTSecret: "test-secret", ChatContextWindowSize: 20}
	svc := chat.NewService(chat.NewRepo(db), orch, cfg.ChatContextWindowSize)
	return httpapi.NewRouter(db, cfg, svc, nil, healthyRecipes{healthy}), db
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v\n%s", err, w.Body.String())
	}
	return env
}

func TestSendChatMessage_AutoCreatesSession(t *testing.T) {
	r := newTestRouter(t, &scriptedOrchestrator{reply: "Salt early, taste often."}, true)

	w := doJSON(t, r, http.MethodPost, "/api/chat/message", `{"message":"any tips?"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var data struct {
		SessionID string `json:"session_id"`
		Message   struct {
			ID      string `json:"id"`
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	}
	env := decodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.SessionID == "" {
		t.Fatal("missing session id")
	}
	if data.Message.Role != "assistant" || data.Message.Content != "Salt early, taste often." {
		t.Fatalf("unexpected message: %+v", data.Message)
	}
	if data.Message.ID == "" {
		t.Fatal("missing message id")
	}

	// history now holds both turns
	w = doJSON(t, r, http.MethodGet, "/api/chat/history/"+data.SessionID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	var hist struct {
		Messages []chat.Message `json:"messages"`
	}
	env = decodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, &hist); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist.Messages))
	}
}

func TestSendChatMessage_MissingMessage(t *testing.T) {
	r := newTestRouter(t, &scriptedOrchestrator{}, true)
	w := doJSON(t, r, http.MethodPost, "/api/chat/message", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGetChatHistory_UnknownSession(t *testing.T) {
	r := newTestRouter(t, &scriptedOrchestrator{}, true)
	w := doJSON(t, r, http.MethodGet, "/api/chat/history/unknown", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestStreamChatMessage_SSERecords(t *testing.T) {
	r := newTestRouter(t, &scriptedOrchestrator{events: []agent.Event{
		{Type: agent.EventStatus, Content: "Thinking..."},
		{Type: agent.EventText, Content: "## Tacos"},
		{Type: agent.EventDone},
	}}, true)

	w := doJSON(t, r, http.MethodPost, "/api/chat/stream", `{"message":"make me tacos"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	var records []map[string]any
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &rec); err != nil {
			t.Fatalf("bad record %q: %v", line, err)
		}
		records = append(records, rec)
	}

	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %v", len(records), records)
	}
	if records[0]["type"] != "status" || records[0]["content"] != "Thinking..." {
		t.Fatalf("unexpected first record: %v", records[0])
	}
	if records[1]["type"] != "text" || records[1]["content"] != "## Tacos" {
		t.Fatalf("unexpected second record: %v", records[1])
	}
	last := records[2]
	if last["type"] != "done" {
		t.Fatalf("last record type = %v", last["type"])
	}
	if sid, ok := last["sessionId"].(string); !ok || sid == "" {
		t.Fatalf("done record missing sessionId: %v", last)
	}
}

func TestAuthFlow_SignupLoginMe(t *testing.T) {
	r := newTestRouter(t, &scriptedOrchestrator{}, true)

	w := doJSON(t, r, http.MethodPost, "/api/auth/signup",
		`{"name":"Ada","email":"ada@example.com","password":"hunter22"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("signup status = %d body=%s", w.Code, w.Body.String())
	}

	// duplicate email rejected
	w = doJSON(t, r, http.MethodPost, "/api/auth/signup",
		`{"name":"Ada","email":"ada@example.com","password":"hunter22"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate signup status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/auth/login",
		`{"email":"ada@example.com","password":"hunter22"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d", w.Code)
	}
	var loginData struct {
		Token string `json:"token"`
	}
	env := decodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, &loginData); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if loginData.Token == "" {
		t.Fatal("missing token")
	}

	w = doJSON(t, r, http.MethodPost, "/api/auth/login",
		`{"email":"ada@example.com","password":"wrong"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", w.Code)
	}

	w = doJSON(t, r, http.MethodGet, "/api/auth/me", "", map[string]string{
		"Authorization": "Bearer " + loginData.Token,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/api/auth/me", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me without token status = %d", w.Code)
	}
}

func TestAgentStatus(t *testing.T) {
	r := newTestRouter(t, &scriptedOrchestrator{}, true)
	w := doJSON(t, r, http.MethodGet, "/api/agent/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ready"`) {
		t.Fatalf("body = %s", w.Body.String())
	}

	r = newTestRouter(t, &scriptedOrchestrator{}, false)
	w = doJSON(t, r, http.MethodGet, "/api/agent/status", "", nil)
	if !strings.Contains(w.Body.String(), `"status":"degraded"`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &scriptedOrchestrator{}, true)
	w := doJSON(t, r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestStreamChatMessage_SetupFailureEmitsErrorRecord(t *testing.T) {
	r, db := newTestRouterDB(t, &scriptedOrchestrator{}, true)

	// Break message storage so the stream cannot start.
	if err := db.Migrator().DropTable(&chat.Message{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	t.Cleanup(func() {
		if err := db.AutoMigrate(&chat.Message{}); err != nil {
			t.Fatalf("restore table: %v", err)
		}
	})

	w := doJSON(t, r, http.MethodPost, "/api/chat/stream", `{"message":"make me tacos"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	want := `data: {"content":"failed to stream response","type":"error"}`
	if !strings.Contains(w.Body.String(), want) {
		t.Fatalf("missing error record, body = %s", w.Body.String())
	}
}

func TestParseRecipe(t *testing.T) {
	r := newTestRouter(t, &scriptedOrchestrator{}, true)

	markdown := "## Carbonara - Luxury Version\n" +
		"**Prep Time**: 15 min\n**Cook Time**: 20 min\n**Servings**: 2\n"
	body, err := json.Marshal(map[string]string{"markdown": markdown, "tier": "luxury"})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/api/recipes/parse", string(body), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var data struct {
		Recipe recipemd.Recipe `json:"recipe"`
	}
	env := decodeEnvelope(t, w)
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Recipe.Name != "Carbonara" {
		t.Fatalf("name = %q", data.Recipe.Name)
	}
	if data.Recipe.Tier != recipemd.TierLuxury {
		t.Fatalf("tier = %q", data.Recipe.Tier)
	}
	if data.Recipe.PrepTime != 15 || data.Recipe.CookTime != 20 || data.Recipe.Servings != 2 {
		t.Fatalf("timings = %d/%d servings %d", data.Recipe.PrepTime, data.Recipe.CookTime, data.Recipe.Servings)
	}

	w = doJSON(t, r, http.MethodPost, "/api/recipes/parse", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing markdown status = %d", w.Code)
	}
}
