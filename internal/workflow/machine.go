// Package workflow drives the per-message conversation state machine:
// classify, route to a tool, retrieve, compose, and gate the response on
// confidence, escalating to a human agent when the gate fails.
package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helpdesk-ai/support-engine/internal/account"
	"github.com/helpdesk-ai/support-engine/internal/audit"
	"github.com/helpdesk-ai/support-engine/internal/errdefs"
	"github.com/helpdesk-ai/support-engine/internal/escalation"
	"github.com/helpdesk-ai/support-engine/internal/index"
	"github.com/helpdesk-ai/support-engine/internal/llm"
	"github.com/helpdesk-ai/support-engine/internal/model"
	"github.com/helpdesk-ai/support-engine/pkg/logger"
	"github.com/helpdesk-ai/support-engine/pkg/metrics"
)

// State names one stage of processing a single inbound message. CLOSED is
// terminal for that message; the conversation stays open for the next one.
type State string

const (
	StateReceived        State = "RECEIVED"
	StateClassifying     State = "CLASSIFYING"
	StateRouting         State = "ROUTING"
	StateRetrieving      State = "RETRIEVING"
	StateComposing       State = "COMPOSING"
	StateConfidenceCheck State = "CONFIDENCE_CHECK"
	StateResponding      State = "RESPONDING"
	StateEscalating      State = "ESCALATING"
	StateClosed          State = "CLOSED"
)

// Classifications below this certainty route to escalation rather than
// guessing a tool.
const classificationFloor = 0.5

const escalationNotice = "I wasn't able to resolve this confidently, so I've handed your request to a human support agent. They will follow up with you shortly."

// Config tunes the confidence gate and message processing.
type Config struct {
	ConfidenceThreshold float64
	RetrievalWeight     float64
	MessageDeadline     time.Duration
	MaxRewrites         int
}

func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.75
	}
	if c.RetrievalWeight <= 0 || c.RetrievalWeight > 1 {
		c.RetrievalWeight = 0.5
	}
	if c.MessageDeadline <= 0 {
		c.MessageDeadline = 30 * time.Second
	}
	if c.MaxRewrites <= 0 {
		c.MaxRewrites = 2
	}
	return c
}

// Outcome is what the caller relays to the user for one inbound message.
type Outcome struct {
	ConversationID string   `json:"conversation_id"`
	MessageID      string   `json:"message_id"`
	ResponseText   string   `json:"response_text"`
	Confidence     *float64 `json:"confidence"`
	Escalated      bool     `json:"escalated"`
}

// Engine runs the state machine. Messages within one conversation are
// processed strictly in arrival order; different conversations proceed
// concurrently.
type Engine struct {
	store       *ConversationStore
	llm         llm.Client
	ranker      *index.Ranker
	accounts    account.Lookup
	escalations *escalation.Manager
	sink        audit.Sink
	limiter     *UserLimiter
	serial      *serializer
	cfg         Config
	logger      *logger.Logger
}

// NewEngine wires the state machine.
func NewEngine(
	store *ConversationStore,
	llmClient llm.Client,
	ranker *index.Ranker,
	accounts account.Lookup,
	escalations *escalation.Manager,
	sink audit.Sink,
	limiter *UserLimiter,
	cfg Config,
	log *logger.Logger,
) *Engine {
	return &Engine{
		store:       store,
		llm:         llmClient,
		ranker:      ranker,
		accounts:    accounts,
		escalations: escalations,
		sink:        sink,
		limiter:     limiter,
		serial:      newSerializer(),
		cfg:         cfg.withDefaults(),
		logger:      log,
	}
}

// Store exposes the conversation store for read endpoints.
func (e *Engine) Store() *ConversationStore {
	return e.store
}

// HandleMessage processes one inbound user message end to end and returns
// the outcome shown to the user. The only error returns are admission
// failures (rate limiting); past admission every path produces an outcome,
// escalating instead of failing.
func (e *Engine) HandleMessage(ctx context.Context, conversationID, userID, content string) (*Outcome, error) {
	if !e.limiter.Allow(userID) {
		return nil, errdefs.ErrRateLimited
	}

	conv := e.store.GetOrCreate(conversationID, userID)
	release := e.serial.enter(conv.ID)
	defer release()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.MessageDeadline)
	defer cancel()

	userMsg := e.store.AppendMessage(conv, model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	})

	log := e.logger.WithConversation(conv.ID, userID)
	state := StateReceived

	state = e.transition(log, state, StateClassifying)
	intent, certainty, err := llm.ClassifyIntent(ctx, e.llm, content)
	if err != nil {
		if errdefs.IsTimeout(err) {
			return e.escalate(ctx, log, conv, userMsg, model.ReasonTimeout), nil
		}
		log.Warn("classification failed", zap.Error(err))
		return e.escalate(ctx, log, conv, userMsg, model.ReasonClassificationFailed), nil
	}

	metrics.ClassificationsTotal.WithLabelValues(string(intent)).Inc()
	e.audit(conv.ID, model.EventClassification, map[string]any{
		"message_id": userMsg.ID,
		"intent":     string(intent),
		"certainty":  certainty,
	})

	if intent == model.IntentUnclassifiable || certainty < classificationFloor {
		return e.escalate(ctx, log, conv, userMsg, model.ReasonClassificationFailed), nil
	}

	state = e.transition(log, state, StateRouting)
	state = e.transition(log, state, StateRetrieving)

	var result toolResult
	switch intent {
	case model.IntentQuestion:
		result, err = e.searchTool(ctx, content)
	case model.IntentAccountIssue:
		result, err = e.accountTool(ctx, userID)
		if err != nil && !errdefs.IsTimeout(err) {
			log.Warn("account lookup failed", zap.Error(err))
			return e.escalate(ctx, log, conv, userMsg, model.ReasonAccountUnavailable), nil
		}
	case model.IntentComplexQuery:
		result, err = e.reasoningTool(ctx, conv, content)
	}
	if err != nil {
		if errdefs.IsTimeout(err) {
			return e.escalate(ctx, log, conv, userMsg, model.ReasonTimeout), nil
		}
		log.Warn("retrieval failed", zap.Error(err))
		return e.escalate(ctx, log, conv, userMsg, model.ReasonNoContext), nil
	}

	e.audit(conv.ID, model.EventRetrieval, map[string]any{
		"message_id":           userMsg.ID,
		"trace":                result.trace,
		"retrieval_confidence": result.retrieval,
	})

	// Retrieval confidence 0 forbids composing an answer.
	if result.empty() {
		return e.escalate(ctx, log, conv, userMsg, model.ReasonNoContext), nil
	}

	state = e.transition(log, state, StateComposing)
	answer, selfCertainty, err := llm.Compose(ctx, e.llm, content, result.contextText)
	if err != nil {
		if errdefs.IsTimeout(err) {
			return e.escalate(ctx, log, conv, userMsg, model.ReasonTimeout), nil
		}
		log.Warn("composition failed", zap.Error(err))
		return e.escalate(ctx, log, conv, userMsg, model.ReasonLowConfidence), nil
	}

	state = e.transition(log, state, StateConfidenceCheck)
	final := e.cfg.RetrievalWeight*result.retrieval + (1-e.cfg.RetrievalWeight)*selfCertainty
	e.audit(conv.ID, model.EventConfidence, map[string]any{
		"message_id":           userMsg.ID,
		"retrieval_confidence": result.retrieval,
		"composer_certainty":   selfCertainty,
		"final_confidence":     final,
		"threshold":            e.cfg.ConfidenceThreshold,
	})

	if final < e.cfg.ConfidenceThreshold {
		return e.escalate(ctx, log, conv, userMsg, model.ReasonLowConfidence), nil
	}

	state = e.transition(log, state, StateResponding)
	e.audit(conv.ID, model.EventOutcome, map[string]any{
		"message_id": userMsg.ID,
		"outcome":    model.OutcomeResponded,
		"confidence": final,
	})
	metrics.OutcomesTotal.WithLabelValues(model.OutcomeResponded).Inc()

	agentMsg := e.store.AppendMessage(conv, model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           model.RoleAgent,
		Content:        answer,
		Confidence:     &final,
		RetrievalTrace: result.trace,
		CreatedAt:      time.Now(),
	})
	e.transition(log, state, StateClosed)

	return &Outcome{
		ConversationID: conv.ID,
		MessageID:      agentMsg.ID,
		ResponseText:   answer,
		Confidence:     &final,
		Escalated:      false,
	}, nil
}

// escalate hands the conversation to the escalation manager and answers the
// user with a notice. The audit outcome entry is appended before the notice
// message lands and the cycle closes.
func (e *Engine) escalate(ctx context.Context, log *logger.Logger, conv *model.Conversation, trigger *model.Message, reason model.ReasonCode) *Outcome {
	// Delivery must proceed even when the message deadline has expired.
	ticket := e.escalations.Escalate(context.WithoutCancel(ctx), conv, trigger, reason)

	outcome := model.OutcomeEscalated
	if ticket.Status != model.DeliverySent {
		outcome = model.OutcomeEscalationFailedQueued
	}

	e.audit(conv.ID, model.EventOutcome, map[string]any{
		"message_id":    trigger.ID,
		"outcome":       outcome,
		"reason":        string(reason),
		"ticket_id":     ticket.ID,
		"ticket_status": string(ticket.Status),
	})
	metrics.OutcomesTotal.WithLabelValues(outcome).Inc()

	notice := e.store.AppendMessage(conv, model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		Role:           model.RoleAgent,
		Content:        escalationNotice,
		Escalation:     true,
		CreatedAt:      time.Now(),
	})

	log.Info("conversation escalated",
		zap.String("reason", string(reason)),
		zap.String("ticket_id", ticket.ID),
		zap.String("ticket_status", string(ticket.Status)),
	)

	return &Outcome{
		ConversationID: conv.ID,
		MessageID:      notice.ID,
		ResponseText:   escalationNotice,
		Confidence:     nil,
		Escalated:      true,
	}
}

func (e *Engine) transition(log *logger.Logger, from, to State) State {
	log.Debug("state transition", zap.String("from", string(from)), zap.String("to", string(to)))
	return to
}

func (e *Engine) audit(conversationID string, kind model.EventKind, payload map[string]any) {
	e.sink.Append(model.AuditEntry{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		Kind:           kind,
		Payload:        payload,
		CreatedAt:      time.Now(),
	})
}
