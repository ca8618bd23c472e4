package workflow

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/helpdesk-ai/support-engine/internal/llm"
	"github.com/helpdesk-ai/support-engine/internal/model"
)

// toolResult is what a routed tool hands to composition: the grounding
// context, the trace recorded on the agent message, and the retrieval
// component of the confidence gate.
type toolResult struct {
	contextText string
	trace       []string
	retrieval   float64
}

func (r toolResult) empty() bool {
	return len(r.trace) == 0 || r.retrieval == 0
}

// searchTool runs a single ranked retrieval for the question.
func (e *Engine) searchTool(ctx context.Context, question string) (toolResult, error) {
	result, confidence, err := e.ranker.Retrieve(ctx, question, nil)
	if err != nil {
		return toolResult{}, err
	}
	return toolResult{
		contextText: joinChunks(result.Results),
		trace:       result.ChunkIDs(),
		retrieval:   confidence,
	}, nil
}

// accountTool answers account_issue intents from the account service rather
// than the vector index. The account record is authoritative for the user,
// so its retrieval component is 1; the trace names the record consulted.
func (e *Engine) accountTool(ctx context.Context, userID string) (toolResult, error) {
	acct, err := e.accounts.Account(ctx, userID)
	if err != nil {
		return toolResult{}, err
	}
	return toolResult{
		contextText: acct.Summary(),
		trace:       []string{"account:" + userID},
		retrieval:   1,
	}, nil
}

// reasoningTool handles complex_query intents: retrieve, grade the context
// for relevance, and rewrite the question for another pass when the grade
// fails, bounded by maxRewrites. Exhausting rewrites without relevant
// context yields an empty result, which gates to escalation.
func (e *Engine) reasoningTool(ctx context.Context, conv *model.Conversation, question string) (toolResult, error) {
	log := e.logger.WithConversation(conv.ID, conv.UserID)
	current := question

	for attempt := 0; ; attempt++ {
		result, confidence, err := e.ranker.Retrieve(ctx, current, nil)
		if err != nil {
			return toolResult{}, err
		}
		if len(result.Results) == 0 {
			return toolResult{}, nil
		}

		contextText := joinChunks(result.Results)
		relevant, err := llm.GradeRelevance(ctx, e.llm, current, contextText)
		if err != nil {
			if ctx.Err() != nil {
				return toolResult{}, ctx.Err()
			}
			// Grader failure is not grounds to discard real context.
			log.Warn("relevance grading failed, keeping retrieved context", zap.Error(err))
			relevant = true
		}

		if relevant {
			return toolResult{
				contextText: contextText,
				trace:       result.ChunkIDs(),
				retrieval:   confidence,
			}, nil
		}

		if attempt >= e.cfg.MaxRewrites {
			log.Info("no relevant context after rewrites",
				zap.Int("attempts", attempt+1),
				zap.String("final_question", current),
			)
			return toolResult{}, nil
		}

		rewritten, err := llm.RewriteQuestion(ctx, e.llm, current)
		if err != nil {
			if ctx.Err() != nil {
				return toolResult{}, ctx.Err()
			}
			log.Warn("question rewrite failed", zap.Error(err))
			return toolResult{}, nil
		}
		log.Debug("rewrote question for another retrieval pass",
			zap.Int("attempt", attempt+1),
			zap.String("rewritten", rewritten),
		)
		current = rewritten
	}
}

func joinChunks(results []model.ScoredChunk) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
