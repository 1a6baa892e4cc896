package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/smartchef/smartchef/internal/agent"
	"github.com/smartchef/smartchef/internal/ai"
	"github.com/smartchef/smartchef/internal/common"
)

// Orchestrator is the slice of the chef agent the chat service needs.
type Orchestrator interface {
	Chat(ctx context.Context, message string, history []ai.Message) string
	StreamChat(ctx context.Context, message string, history []ai.Message, includeImages bool) <-chan agent.Event
}

type Service struct {
	repo              *Repo
	orch              Orchestrator
	contextWindowSize int
}

func NewService(repo *Repo, orch Orchestrator, contextWindowSize int) *Service {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	return &Service{repo: repo, orch: orch, contextWindowSize: contextWindowSize}
}

func (s *Service) CreateSession(ctx context.Context) (*Session, error) {
	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	session := &Session{SessionID: sid}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// EnsureSession resolves sessionID to an existing session, creating one when
// the id is empty or unknown. Clients may send ids minted elsewhere.
func (s *Service) EnsureSession(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		return s.CreateSession(ctx)
	}

	session, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	session = &Session{SessionID: sessionID}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// history returns the recent transcript oldest first, in provider form.
func (s *Service) history(ctx context.Context, sessionID string) ([]ai.Message, error) {
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, sessionID, s.contextWindowSize)
	if err != nil {
		return nil, err
	}
	msgs := make([]ai.Message, 0, len(recentDesc))
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		msgs = append(msgs, ai.Message{Role: m.Role, Content: m.Content})
	}
	return msgs, nil
}

func (s *Service) insertMessage(ctx context.Context, sessionID, role, content string) (*Message, error) {
	m := &Message{
		MessageID: uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// SendMessage runs one blocking chat turn: store the user message, ask the
// agent, store and return the assistant message.
func (s *Service) SendMessage(ctx context.Context, sessionID, content string) (*Message, string, error) {
	session, err := s.EnsureSession(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}

	history, err := s.history(ctx, session.SessionID)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.insertMessage(ctx, session.SessionID, "user", content); err != nil {
		return nil, "", err
	}

	reply := s.orch.Chat(ctx, content, history)

	assistant, err := s.insertMessage(ctx, session.SessionID, "assistant", reply)
	if err != nil {
		return nil, "", err
	}
	return assistant, session.SessionID, nil
}

// History returns the full transcript for an existing session.
func (s *Service) History(ctx context.Context, sessionID string) ([]Message, error) {
	if _, err := s.repo.GetSessionBySessionID(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, sessionID)
}

// StreamMessage starts a streaming turn. The user message is stored before
// the stream begins; text events are accumulated and stored as the assistant
// message when the agent finishes, just before the done event is forwarded.
func (s *Service) StreamMessage(ctx context.Context, sessionID, content string, includeImages bool) (string, <-chan agent.Event, error) {
	session, err := s.EnsureSession(ctx, sessionID)
	if err != nil {
		return "", nil, err
	}

	history, err := s.history(ctx, session.SessionID)
	if err != nil {
		return "", nil, err
	}
	if _, err := s.insertMessage(ctx, session.SessionID, "user", content); err != nil {
		return "", nil, err
	}

	in := s.orch.StreamChat(ctx, content, history, includeImages)
	out := make(chan agent.Event, 8)

	// The insert must survive a client that disconnects right after the
	// stream finishes, so it runs on a context detached from the request.
	insertCtx := context.WithoutCancel(ctx)

	go func() {
		defer close(out)
		var full string
		for ev := range in {
			switch ev.Type {
			case agent.EventText:
				full += ev.Content
			case agent.EventDone:
				// The stream already delivered the content; a failed insert
				// loses the transcript row but must not break the stream.
				if _, err := s.insertMessage(insertCtx, session.SessionID, "assistant", full); err != nil {
					slog.Error("assistant message insert failed", "session_id", session.SessionID, "error", err)
				}
			}
			out <- ev
		}
	}()

	return session.SessionID, out, nil
}

// Job orchestration

func (s *Service) CreateJobOrGetExisting(ctx context.Context, sessionID, prompt string, idempotencyKey *string) (*Job, bool, error) {
	jobID, err := common.NewULID()
	if err != nil {
		return nil, false, err
	}
	job := &Job{
		ID:             jobID,
		SessionID:      sessionID,
		Prompt:         prompt,
		IdempotencyKey: idempotencyKey,
		Status:         JobQueued,
	}
	return s.repo.CreateJobOrGetExisting(ctx, job)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

// RunJob executes one queued job to completion. The agent maps its own
// failures to apologetic text, so the only errors here are storage errors.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	_ = s.repo.UpdateJobStatusRunning(ctx, jobID)

	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	history, err := s.history(ctx, job.SessionID)
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}
	if _, err := s.insertMessage(ctx, job.SessionID, "user", job.Prompt); err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	reply := s.orch.Chat(ctx, job.Prompt, history)

	assistant, err := s.insertMessage(ctx, job.SessionID, "assistant", reply)
	if err != nil {
		_ = s.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}
	return s.repo.MarkJobSucceeded(ctx, jobID, assistant.MessageID)
}
