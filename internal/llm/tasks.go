package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helpdesk-ai/support-engine/internal/model"
)

// Task-level helpers over Client. Each one is a single request/response call
// with structured JSON output where a machine-readable answer is needed.

const classifySystem = `You are an intent classifier for a customer support system.
Classify the user's message into exactly one category:
- "question": a factual question answerable from the knowledge base
- "account_issue": a request about the user's own account, billing, or subscription
- "complex_query": a multi-part or comparative question that needs several lookups
- "unclassifiable": anything else, or when you are unsure
Respond with JSON only: {"intent": "<category>", "confidence": <0.0-1.0>}`

// ClassifyIntent determines the intent category of a user message along with
// the classifier's own confidence.
func ClassifyIntent(ctx context.Context, c Client, text string) (model.Intent, float64, error) {
	resp, err := c.Complete(ctx, &CompletionRequest{
		System:      classifySystem,
		Messages:    []ChatMessage{{Role: "user", Content: text}},
		MaxTokens:   128,
		Temperature: 0,
	})
	if err != nil {
		return model.IntentUnclassifiable, 0, err
	}

	var out struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := decodeJSON(resp.Content, &out); err != nil {
		return model.IntentUnclassifiable, 0, fmt.Errorf("unparsable classification: %w", err)
	}

	return model.ParseIntent(out.Intent), out.Confidence, nil
}

const composeSystem = `You are an assistant for question-answering in a customer support system.
Answer the question using ONLY the provided context. If the context does not
contain the answer, say you don't know. Keep the answer concise, three
sentences maximum. Report how certain you are that the context fully supports
your answer.
Respond with JSON only: {"answer": "<text>", "certainty": <0.0-1.0>}`

// Compose builds a draft answer strictly grounded in the retrieved context
// and returns the composer's self-reported certainty.
func Compose(ctx context.Context, c Client, question, contextText string) (string, float64, error) {
	prompt := fmt.Sprintf("Question: %s\n\nContext:\n%s", question, contextText)

	resp, err := c.Complete(ctx, &CompletionRequest{
		System:      composeSystem,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   512,
		Temperature: 0,
	})
	if err != nil {
		return "", 0, err
	}

	var out struct {
		Answer    string  `json:"answer"`
		Certainty float64 `json:"certainty"`
	}
	if err := decodeJSON(resp.Content, &out); err != nil {
		return "", 0, fmt.Errorf("unparsable composition: %w", err)
	}

	return out.Answer, out.Certainty, nil
}

const gradeSystem = `You are a grader assessing relevance of retrieved context to a user question.
If the context contains keywords or semantic meaning related to the question,
grade it as relevant.
Respond with JSON only: {"relevant": true|false}`

// GradeRelevance judges whether retrieved context is relevant to a question.
func GradeRelevance(ctx context.Context, c Client, question, contextText string) (bool, error) {
	prompt := fmt.Sprintf("Question: %s\n\nRetrieved context:\n%s", question, contextText)

	resp, err := c.Complete(ctx, &CompletionRequest{
		System:      gradeSystem,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   64,
		Temperature: 0,
	})
	if err != nil {
		return false, err
	}

	var out struct {
		Relevant bool `json:"relevant"`
	}
	if err := decodeJSON(resp.Content, &out); err != nil {
		return false, fmt.Errorf("unparsable grade: %w", err)
	}

	return out.Relevant, nil
}

const rewriteSystem = `Look at the input and reason about the underlying semantic intent.
Formulate an improved search question that is more likely to match indexed
documentation. Respond with the improved question only, nothing else.`

// RewriteQuestion reformulates a question that failed to retrieve relevant
// context.
func RewriteQuestion(ctx context.Context, c Client, question string) (string, error) {
	resp, err := c.Complete(ctx, &CompletionRequest{
		System:      rewriteSystem,
		Messages:    []ChatMessage{{Role: "user", Content: question}},
		MaxTokens:   256,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}

	rewritten := strings.TrimSpace(resp.Content)
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

const propositionsSystem = `Decompose the content into clear and simple propositions that are
interpretable out of context:
1. Split compound sentences into simple sentences, keeping the original phrasing.
2. Separate descriptive information about named entities into distinct propositions.
3. Decontextualize each proposition: replace pronouns with the entity they refer to.
Respond with JSON only: {"propositions": ["...", "..."]}`

// ExtractPropositions decomposes text into atomic self-contained statements.
func ExtractPropositions(ctx context.Context, c Client, text string) ([]string, error) {
	resp, err := c.Complete(ctx, &CompletionRequest{
		System:      propositionsSystem,
		Messages:    []ChatMessage{{Role: "user", Content: text}},
		MaxTokens:   4096,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Propositions []string `json:"propositions"`
	}
	if err := decodeJSON(resp.Content, &out); err != nil {
		return nil, fmt.Errorf("unparsable propositions: %w", err)
	}

	return out.Propositions, nil
}

const summarizeSystem = `You maintain groups of propositions that share a topic. Write a one-sentence
summary of what the group is about, generalizing specifics (apples -> food,
March -> dates and times). Respond with the summary only, nothing else.`

// SummarizeChunk produces a short rolling summary for a proposition group.
// current may be empty for a new group.
func SummarizeChunk(ctx context.Context, c Client, proposition, current string) (string, error) {
	prompt := "New proposition:\n" + proposition
	if current != "" {
		prompt += "\n\nCurrent summary:\n" + current
	}

	resp, err := c.Complete(ctx, &CompletionRequest{
		System:      summarizeSystem,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   128,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

const titleSystem = `You maintain groups of propositions that share a topic. Given a group summary,
write a very brief few-word title, generalizing specifics. Respond with the
title only, nothing else.`

// TitleChunk produces a brief title for a proposition group from its summary.
func TitleChunk(ctx context.Context, c Client, summary string) (string, error) {
	resp, err := c.Complete(ctx, &CompletionRequest{
		System:      titleSystem,
		Messages:    []ChatMessage{{Role: "user", Content: summary}},
		MaxTokens:   32,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

const matchChunkSystem = `Determine whether the proposition belongs to any of the existing groups.
A proposition belongs to a group when their meaning, direction, or intention
are similar. If none match, use an empty id.
Respond with JSON only: {"chunk_id": "<id or empty>"}`

// FindRelevantChunk returns the id of the group a proposition belongs to, or
// empty when it should seed a new group. outline lists existing groups.
func FindRelevantChunk(ctx context.Context, c Client, proposition, outline string) (string, error) {
	prompt := fmt.Sprintf("Existing groups:\n%s\nProposition:\n%s", outline, proposition)

	resp, err := c.Complete(ctx, &CompletionRequest{
		System:      matchChunkSystem,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   64,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}

	var out struct {
		ChunkID string `json:"chunk_id"`
	}
	if err := decodeJSON(resp.Content, &out); err != nil {
		return "", fmt.Errorf("unparsable chunk match: %w", err)
	}

	id := strings.TrimSpace(out.ChunkID)
	if strings.EqualFold(id, "no chunks") || strings.EqualFold(id, "none") {
		return "", nil
	}
	return id, nil
}

// decodeJSON unmarshals the first JSON object or array in content. Models
// occasionally wrap their output in prose or code fences.
func decodeJSON(content string, v any) error {
	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return fmt.Errorf("no JSON in response")
	}
	end := strings.LastIndexAny(content, "}]")
	if end < start {
		return fmt.Errorf("truncated JSON in response")
	}
	return json.Unmarshal([]byte(content[start:end+1]), v)
}
