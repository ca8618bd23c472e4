package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-ai/support-engine/internal/account"
	"github.com/helpdesk-ai/support-engine/internal/audit"
	"github.com/helpdesk-ai/support-engine/internal/errdefs"
	"github.com/helpdesk-ai/support-engine/internal/escalation"
	"github.com/helpdesk-ai/support-engine/internal/index"
	"github.com/helpdesk-ai/support-engine/internal/llm"
	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
)

// scriptLLM drives the engine's prompts from fixed settings.
type scriptLLM struct {
	mu            sync.Mutex
	intent        string
	intentConf    float64
	certainty     float64
	relevant      bool
	classifyDelay time.Duration
	perCallDelay  time.Duration
	classifyErr   error

	composeCalls int
	gradeCalls   int
}

func (s *scriptLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.perCallDelay > 0 {
		select {
		case <-time.After(s.perCallDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	switch {
	case strings.Contains(req.System, "intent classifier"):
		if s.classifyDelay > 0 {
			select {
			case <-time.After(s.classifyDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if s.classifyErr != nil {
			return nil, s.classifyErr
		}
		return &llm.CompletionResponse{
			Content: fmt.Sprintf(`{"intent": %q, "confidence": %g}`, s.intent, s.intentConf),
		}, nil

	case strings.Contains(req.System, "question-answering"):
		s.mu.Lock()
		s.composeCalls++
		s.mu.Unlock()
		question, _, _ := strings.Cut(strings.TrimPrefix(req.Messages[0].Content, "Question: "), "\n")
		return &llm.CompletionResponse{
			Content: fmt.Sprintf(`{"answer": %q, "certainty": %g}`, "answer:"+question, s.certainty),
		}, nil

	case strings.Contains(req.System, "grader assessing"):
		s.mu.Lock()
		s.gradeCalls++
		s.mu.Unlock()
		return &llm.CompletionResponse{Content: fmt.Sprintf(`{"relevant": %t}`, s.relevant)}, nil

	case strings.Contains(req.System, "improved search question"):
		return &llm.CompletionResponse{Content: "rewritten question"}, nil
	}

	return nil, fmt.Errorf("unexpected prompt: %s", req.System)
}

func (s *scriptLLM) Name() string { return "scripted" }

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (constEmbedder) Model() string { return "const" }

type stubTicketing struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (s *stubTicketing) CreateTicket(context.Context, escalation.TicketRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return "", errors.New("provider down")
	}
	return "ext-1", nil
}

type stubAccounts struct {
	err error
}

func (s *stubAccounts) Account(_ context.Context, userID string) (*account.Account, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &account.Account{UserID: userID, Plan: "pro", Status: "active"}, nil
}

type testRig struct {
	engine    *Engine
	index     *index.Memory
	sink      *audit.Memory
	ticketing *stubTicketing
	queue     *escalation.MemoryQueue
	llm       *scriptLLM
	accounts  *stubAccounts
}

func newRig(t *testing.T, script *scriptLLM) *testRig {
	t.Helper()
	log := logger.NewNop()

	idx := index.NewMemory()
	ranker := index.NewRanker(idx, constEmbedder{}, nil, index.RankerConfig{TopK: 3}, log)

	ticketing := &stubTicketing{}
	queue := escalation.NewMemoryQueue()
	manager := escalation.NewManager(ticketing, queue, escalation.Config{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
	}, log)

	sink := audit.NewMemory()
	accounts := &stubAccounts{}

	engine := NewEngine(
		NewConversationStore(),
		script,
		ranker,
		accounts,
		manager,
		sink,
		NewUserLimiter(1000, 1000),
		Config{
			ConfidenceThreshold: 0.75,
			RetrievalWeight:     0.5,
			MessageDeadline:     5 * time.Second,
			MaxRewrites:         2,
		},
		log,
	)

	return &testRig{
		engine:    engine,
		index:     idx,
		sink:      sink,
		ticketing: ticketing,
		queue:     queue,
		llm:       script,
		accounts:  accounts,
	}
}

func seedIndex(idx *index.Memory) {
	idx.Upsert([]index.Entry{{
		ChunkID:    "chunk-1",
		DocumentID: "doc-1",
		Text:       "Refunds are processed within five business days.",
		Vector:     []float32{1, 0},
		IndexedAt:  time.Now(),
	}})
}

func TestHandleMessageRespondsAboveThreshold(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "question", intentConf: 0.9, certainty: 0.95})
	seedIndex(rig.index)

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "How long do refunds take?")
	require.NoError(t, err)

	assert.False(t, outcome.Escalated)
	assert.Equal(t, "answer:How long do refunds take?", outcome.ResponseText)
	require.NotNil(t, outcome.Confidence)
	// retrieval confidence 1 (single clear match), weighted with certainty.
	assert.InDelta(t, 0.975, *outcome.Confidence, 1e-9)

	conv, ok := rig.engine.Store().Get(outcome.ConversationID)
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)

	agent := conv.Messages[1]
	assert.Equal(t, model.RoleAgent, agent.Role)
	require.NotNil(t, agent.Confidence)
	assert.Equal(t, []string{"chunk-1"}, agent.RetrievalTrace)
	assert.False(t, agent.Escalation)

	assert.Equal(t, 0, rig.ticketing.calls)

	outcomes := rig.sink.ByKind(model.EventOutcome)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.OutcomeResponded, outcomes[0].Payload["outcome"])
	assert.Len(t, rig.sink.ByKind(model.EventClassification), 1)
	assert.Len(t, rig.sink.ByKind(model.EventRetrieval), 1)
	assert.Len(t, rig.sink.ByKind(model.EventConfidence), 1)
}

func TestHandleMessageEscalatesBelowThreshold(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "question", intentConf: 0.9, certainty: 0.1})
	seedIndex(rig.index)

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "How long do refunds take?")
	require.NoError(t, err)

	assert.True(t, outcome.Escalated)
	assert.Nil(t, outcome.Confidence)
	assert.NotEmpty(t, outcome.ResponseText, "the user always gets a notice")
	assert.Equal(t, 1, rig.ticketing.calls)

	conv, _ := rig.engine.Store().Get(outcome.ConversationID)
	require.Len(t, conv.Messages, 2)
	notice := conv.Messages[1]
	assert.True(t, notice.Escalation)
	assert.Nil(t, notice.Confidence)

	outcomes := rig.sink.ByKind(model.EventOutcome)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.OutcomeEscalated, outcomes[0].Payload["outcome"])
	assert.Equal(t, string(model.ReasonLowConfidence), outcomes[0].Payload["reason"])
}

func TestHandleMessageEmptyIndexEscalates(t *testing.T) {
	// High composer certainty must not matter: an empty index forbids
	// answering at all.
	rig := newRig(t, &scriptLLM{intent: "question", intentConf: 0.9, certainty: 0.99})

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "Anything indexed?")
	require.NoError(t, err)

	assert.True(t, outcome.Escalated)
	assert.Equal(t, 0, rig.llm.composeCalls, "no composition without retrieved context")

	outcomes := rig.sink.ByKind(model.EventOutcome)
	require.Len(t, outcomes, 1)
	assert.Equal(t, string(model.ReasonNoContext), outcomes[0].Payload["reason"])
}

func TestHandleMessageUnclassifiableEscalates(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "unclassifiable", intentConf: 0.9})
	seedIndex(rig.index)

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "asdf qwerty")
	require.NoError(t, err)
	assert.True(t, outcome.Escalated)

	outcomes := rig.sink.ByKind(model.EventOutcome)
	require.Len(t, outcomes, 1)
	assert.Equal(t, string(model.ReasonClassificationFailed), outcomes[0].Payload["reason"])
}

func TestHandleMessageLowClassifierConfidenceEscalates(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "question", intentConf: 0.2})
	seedIndex(rig.index)

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "hmm")
	require.NoError(t, err)
	assert.True(t, outcome.Escalated)
	assert.Equal(t, 0, rig.llm.composeCalls)
}

func TestHandleMessageTimeoutEscalates(t *testing.T) {
	script := &scriptLLM{intent: "question", intentConf: 0.9, classifyDelay: time.Second}
	rig := newRig(t, script)
	rig.engine.cfg.MessageDeadline = 20 * time.Millisecond
	seedIndex(rig.index)

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "slow one")
	require.NoError(t, err)
	assert.True(t, outcome.Escalated)

	outcomes := rig.sink.ByKind(model.EventOutcome)
	require.Len(t, outcomes, 1)
	assert.Equal(t, string(model.ReasonTimeout), outcomes[0].Payload["reason"])
	assert.Equal(t, 1, rig.ticketing.calls, "escalation proceeds past the expired deadline")
}

func TestHandleMessageAccountIssue(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "account_issue", intentConf: 0.9, certainty: 0.9})

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-7", "Why was I billed twice?")
	require.NoError(t, err)

	assert.False(t, outcome.Escalated)
	require.NotNil(t, outcome.Confidence)
	assert.InDelta(t, 0.95, *outcome.Confidence, 1e-9)

	conv, _ := rig.engine.Store().Get(outcome.ConversationID)
	assert.Equal(t, []string{"account:user-7"}, conv.Messages[1].RetrievalTrace)
}

func TestHandleMessageAccountUnavailableEscalates(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "account_issue", intentConf: 0.9})
	rig.accounts.err = errors.New("account service 503")

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-7", "Why was I billed twice?")
	require.NoError(t, err)
	assert.True(t, outcome.Escalated)

	outcomes := rig.sink.ByKind(model.EventOutcome)
	require.Len(t, outcomes, 1)
	assert.Equal(t, string(model.ReasonAccountUnavailable), outcomes[0].Payload["reason"])
}

func TestHandleMessageComplexQueryRelevant(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "complex_query", intentConf: 0.9, certainty: 0.95, relevant: true})
	seedIndex(rig.index)

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "Compare refund policies")
	require.NoError(t, err)
	assert.False(t, outcome.Escalated)
	assert.Equal(t, 1, rig.llm.gradeCalls)
	assert.Equal(t, 1, rig.llm.composeCalls)
}

func TestHandleMessageComplexQueryExhaustsRewrites(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "complex_query", intentConf: 0.9, certainty: 0.95, relevant: false})
	seedIndex(rig.index)

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "Compare refund policies")
	require.NoError(t, err)

	assert.True(t, outcome.Escalated)
	assert.Equal(t, 3, rig.llm.gradeCalls, "initial pass plus two rewrites")
	assert.Equal(t, 0, rig.llm.composeCalls)

	outcomes := rig.sink.ByKind(model.EventOutcome)
	require.Len(t, outcomes, 1)
	assert.Equal(t, string(model.ReasonNoContext), outcomes[0].Payload["reason"])
}

func TestHandleMessageEscalationQueuedWhenProviderDown(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "question", intentConf: 0.9, certainty: 0.1})
	rig.ticketing.fail = true
	seedIndex(rig.index)

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "How long do refunds take?")
	require.NoError(t, err)

	assert.True(t, outcome.Escalated)
	assert.NotEmpty(t, outcome.ResponseText, "the user still gets the notice")
	assert.Equal(t, 3, rig.ticketing.calls, "bounded delivery retries")
	assert.Equal(t, 1, rig.queue.Len(), "ticket parked durably")

	outcomes := rig.sink.ByKind(model.EventOutcome)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.OutcomeEscalationFailedQueued, outcomes[0].Payload["outcome"])
}

func TestHandleMessageSerializesPerConversation(t *testing.T) {
	script := &scriptLLM{intent: "question", intentConf: 0.9, certainty: 0.95, perCallDelay: 20 * time.Millisecond}
	rig := newRig(t, script)
	seedIndex(rig.index)

	conv := rig.engine.Store().GetOrCreate("", "user-1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := rig.engine.HandleMessage(context.Background(), conv.ID, "user-1", "first")
		assert.NoError(t, err)
	}()
	time.Sleep(5 * time.Millisecond)
	go func() {
		defer wg.Done()
		_, err := rig.engine.HandleMessage(context.Background(), conv.ID, "user-1", "second")
		assert.NoError(t, err)
	}()
	wg.Wait()

	got, _ := rig.engine.Store().Get(conv.ID)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "first", got.Messages[0].Content)
	assert.Equal(t, model.RoleAgent, got.Messages[1].Role)
	assert.Equal(t, "answer:first", got.Messages[1].Content)
	assert.Equal(t, "second", got.Messages[2].Content)
	assert.Equal(t, "answer:second", got.Messages[3].Content)
}

func TestHandleMessageRateLimited(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "question", intentConf: 0.9, certainty: 0.95})
	seedIndex(rig.index)
	rig.engine.limiter = NewUserLimiter(0.001, 1)

	_, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "first")
	require.NoError(t, err)

	_, err = rig.engine.HandleMessage(context.Background(), "", "user-1", "second")
	assert.ErrorIs(t, err, errdefs.ErrRateLimited)
}

func TestAuditEntryPrecedesTerminalMessage(t *testing.T) {
	rig := newRig(t, &scriptLLM{intent: "question", intentConf: 0.9, certainty: 0.95})
	seedIndex(rig.index)

	outcome, err := rig.engine.HandleMessage(context.Background(), "", "user-1", "How long do refunds take?")
	require.NoError(t, err)

	conv, _ := rig.engine.Store().Get(outcome.ConversationID)
	agent := conv.Messages[1]

	outcomes := rig.sink.ByKind(model.EventOutcome)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].CreatedAt.After(agent.CreatedAt),
		"outcome entry must exist before the terminal message lands")
	assert.Equal(t, conv.Messages[0].ID, outcomes[0].Payload["message_id"])
}
