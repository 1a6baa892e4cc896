package chat

import (
	"context"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/smartchef/smartchef/internal/agent"
	"github.com/smartchef/smartchef/internal/ai"
)

type recordingOrchestrator struct {
	reply       string
	lastHistory []ai.Message
	lastMessage string
	events      []agent.Event
}

func (o *recordingOrchestrator) Chat(ctx context.Context, message string, history []ai.Message) string {
	o.lastMessage = message
	o.lastHistory = append([]ai.Message(nil), history...)
	return o.reply
}

func (o *recordingOrchestrator) StreamChat(ctx context.Context, message string, history []ai.Message, includeImages bool) <-chan agent.Event {
	o.lastMessage = message
	o.lastHistory = append([]ai.Message(nil), history...)
	out := make(chan agent.Event, len(o.events))
	go func() {
		defer close(out)
		for _, ev := range o.events {
			out <- ev
		}
	}()
	return out
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Session{}, &Message{}, &Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, orch Orchestrator, window int) (*Service, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	return NewService(NewRepo(db), orch, window), db
}

func TestSendMessage_WritesUserAndAssistant(t *testing.T) {
	orch := &recordingOrchestrator{reply: "Try roasting the garlic first."}
	svc, db := newTestService(t, orch, 20)

	assistant, sessionID, err := svc.SendMessage(context.Background(), "", "Hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected an auto-created session id")
	}
	if assistant.Content != "Try roasting the garlic first." {
		t.Fatalf("unexpected reply: %q", assistant.Content)
	}
	if assistant.MessageID == "" {
		t.Fatal("expected assistant message id to be set")
	}

	var msgs []Message
	if err := db.Where("session_id = ?", sessionID).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "Hello" {
		t.Fatalf("unexpected user msg: role=%q content=%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != "assistant" {
		t.Fatalf("unexpected assistant msg role: %q", msgs[1].Role)
	}
}

func TestSendMessage_HistoryExcludesCurrentMessage(t *testing.T) {
	orch := &recordingOrchestrator{reply: "ok"}
	svc, _ := newTestService(t, orch, 20)

	_, sessionID, err := svc.SendMessage(context.Background(), "", "first")
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if len(orch.lastHistory) != 0 {
		t.Fatalf("first turn should see empty history, got %d messages", len(orch.lastHistory))
	}

	if _, _, err := svc.SendMessage(context.Background(), sessionID, "second"); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if len(orch.lastHistory) != 2 {
		t.Fatalf("second turn should see 2 history messages, got %d", len(orch.lastHistory))
	}
	if orch.lastMessage != "second" {
		t.Fatalf("current message = %q", orch.lastMessage)
	}
}

func TestSendMessage_ContextWindowBoundsHistory(t *testing.T) {
	orch := &recordingOrchestrator{reply: "ok"}
	svc, _ := newTestService(t, orch, 3)

	session, err := svc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	for i := 0; i < 5; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if _, err := svc.insertMessage(context.Background(), session.SessionID, role, "seed"); err != nil {
			t.Fatalf("seed msg %d: %v", i, err)
		}
	}

	if _, _, err := svc.SendMessage(context.Background(), session.SessionID, "new"); err != nil {
		t.Fatalf("send message: %v", err)
	}
	if len(orch.lastHistory) != 3 {
		t.Fatalf("expected 3 history messages, got %d", len(orch.lastHistory))
	}
}

func TestEnsureSession_ReusesClientMintedID(t *testing.T) {
	svc, _ := newTestService(t, &recordingOrchestrator{}, 20)

	s1, err := svc.EnsureSession(context.Background(), "client-id-123")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if s1.SessionID != "client-id-123" {
		t.Fatalf("session id = %q", s1.SessionID)
	}

	s2, err := svc.EnsureSession(context.Background(), "client-id-123")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if s2.ID != s1.ID {
		t.Fatal("second ensure should return the same session row")
	}
}

func TestStreamMessage_PersistsAccumulatedText(t *testing.T) {
	orch := &recordingOrchestrator{events: []agent.Event{
		{Type: agent.EventStatus, Content: "Thinking..."},
		{Type: agent.EventText, Content: "## Tacos\nbody"},
		{Type: agent.EventDone},
	}}
	svc, db := newTestService(t, orch, 20)

	sessionID, events, err := svc.StreamMessage(context.Background(), "", "make me tacos", false)
	if err != nil {
		t.Fatalf("stream message: %v", err)
	}

	var got []agent.Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 3 || got[len(got)-1].Type != agent.EventDone {
		t.Fatalf("unexpected events: %+v", got)
	}

	var msgs []Message
	if err := db.Where("session_id = ? AND role = ?", sessionID, "assistant").Find(&msgs).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "## Tacos\nbody" {
		t.Fatalf("assistant transcript not persisted: %+v", msgs)
	}
}

// manualOrchestrator lets a test feed stream events after StreamMessage has
// already returned.
type manualOrchestrator struct{ events chan agent.Event }

func (o *manualOrchestrator) Chat(ctx context.Context, message string, history []ai.Message) string {
	return ""
}

func (o *manualOrchestrator) StreamChat(ctx context.Context, message string, history []ai.Message, includeImages bool) <-chan agent.Event {
	return o.events
}

func TestStreamMessage_PersistsAfterClientDisconnect(t *testing.T) {
	orch := &manualOrchestrator{events: make(chan agent.Event)}
	svc, db := newTestService(t, orch, 20)

	ctx, cancel := context.WithCancel(context.Background())
	sessionID, events, err := svc.StreamMessage(ctx, "", "make me tacos", false)
	if err != nil {
		t.Fatalf("stream message: %v", err)
	}

	// The client goes away before the agent finishes.
	cancel()
	orch.events <- agent.Event{Type: agent.EventText, Content: "## Tacos\nbody"}
	orch.events <- agent.Event{Type: agent.EventDone}
	close(orch.events)
	for range events {
	}

	var msgs []Message
	if err := db.Where("session_id = ? AND role = ?", sessionID, "assistant").Find(&msgs).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "## Tacos\nbody" {
		t.Fatalf("assistant transcript lost on disconnect: %+v", msgs)
	}
}

func TestHistory_UnknownSession(t *testing.T) {
	svc, _ := newTestService(t, &recordingOrchestrator{}, 20)
	if _, err := svc.History(context.Background(), "nope"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestRunJob_MarksSucceededAndStoresReply(t *testing.T) {
	orch := &recordingOrchestrator{reply: "## Tacos\nfull page"}
	svc, _ := newTestService(t, orch, 20)

	session, err := svc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	job, created, err := svc.CreateJobOrGetExisting(context.Background(), session.SessionID, "make me tacos", nil)
	if err != nil || !created {
		t.Fatalf("create job: created=%v err=%v", created, err)
	}

	if err := svc.RunJob(context.Background(), job.ID); err != nil {
		t.Fatalf("run job: %v", err)
	}

	stored, err := svc.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if stored.Status != JobSucceeded {
		t.Fatalf("status = %q", stored.Status)
	}
	if stored.ResultMessageID == nil || *stored.ResultMessageID == "" {
		t.Fatal("result message id not set")
	}

	msgs, err := svc.History(context.Background(), session.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected user+assistant rows, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "make me tacos" {
		t.Fatalf("unexpected user row: %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "## Tacos\nfull page" {
		t.Fatalf("unexpected assistant row: %+v", msgs[1])
	}
}

func TestCreateJobOrGetExisting_Idempotent(t *testing.T) {
	svc, _ := newTestService(t, &recordingOrchestrator{}, 20)

	session, err := svc.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	key := "client-key-1"
	j1, created, err := svc.CreateJobOrGetExisting(context.Background(), session.SessionID, "tacos", &key)
	if err != nil || !created {
		t.Fatalf("first create: created=%v err=%v", created, err)
	}
	j2, created, err := svc.CreateJobOrGetExisting(context.Background(), session.SessionID, "tacos", &key)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created || j2.ID != j1.ID {
		t.Fatalf("expected existing job back, created=%v id1=%s id2=%s", created, j1.ID, j2.ID)
	}
}
