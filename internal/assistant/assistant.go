// Package assistant implements AI-assisted task creation: a chat turn is
// sent to the model, and the combined user message + reply is run through
// intent extraction. When a task-creation intent with a usable title is
// found, the task is created through the cache manager; when the intent is
// there but the title is not, the caller gets a clarification question
// instead; an empty-titled task is never created.
package assistant

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/taskdeck/taskdeck/internal/cache"
	"github.com/taskdeck/taskdeck/internal/intent"
	"github.com/taskdeck/taskdeck/internal/task"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-5"

const systemPrompt = `You are a terse task-planning helper inside a task manager.
Answer in one or two sentences. When the user asks you to remember or track
something, acknowledge it and restate the task title in double quotes.`

// Reply is the outcome of one chat turn.
type Reply struct {
	// Text is the assistant's reply, empty in extraction-only mode.
	Text string

	// Created is the confirmed task when extraction fired and the cache
	// commit succeeded.
	Created *task.Task

	// Question is set when intent was detected but the title was missing;
	// the caller should ask it and retry with the answer.
	Question string

	// Extraction is the raw extraction result, for callers that want the
	// parsed due date or tags regardless of creation.
	Extraction intent.Result
}

// Assistant couples the chat model with intent extraction and the cache.
type Assistant struct {
	client  anthropic.Client
	model   anthropic.Model
	mgr     *cache.Manager
	logger  *log.Logger
	enabled bool
}

// New creates an assistant for the manager's user. With an empty apiKey the
// assistant degrades to extraction-only mode: no model calls, extraction
// runs over the user message alone.
func New(apiKey, model string, mgr *cache.Manager, logger *log.Logger) *Assistant {
	if logger == nil {
		logger = log.New(os.Stderr, "[assistant] ", log.LstdFlags)
	}
	if model == "" {
		model = DefaultModel
	}

	a := &Assistant{
		model:  anthropic.Model(model),
		mgr:    mgr,
		logger: logger,
	}
	if apiKey != "" {
		a.client = anthropic.NewClient(option.WithAPIKey(apiKey))
		a.enabled = true
	}
	return a
}

// Enabled reports whether chat turns reach the model.
func (a *Assistant) Enabled() bool { return a.enabled }

// Chat processes one user message: model reply (when enabled), intent
// extraction, and task creation on a firm match. Model failures degrade to
// extraction-only for the turn rather than failing it; task-creation
// failures are returned.
func (a *Assistant) Chat(ctx context.Context, userMessage string) (Reply, error) {
	var reply Reply

	if a.enabled {
		text, err := a.complete(ctx, userMessage)
		if err != nil {
			a.logger.Printf("WARNING: model call failed, falling back to extraction only: %v", err)
		} else {
			reply.Text = text
		}
	}

	reply.Extraction = intent.Extract(userMessage, reply.Text)

	if !reply.Extraction.Intent {
		return reply, nil
	}
	if reply.Extraction.NeedsClarification {
		reply.Question = "What should the task be called?"
		return reply, nil
	}

	created, err := a.mgr.AddTask(ctx, reply.Extraction.Draft())
	if err != nil {
		return reply, fmt.Errorf("failed to create extracted task: %w", err)
	}
	reply.Created = &created
	return reply, nil
}

// complete sends one user turn to the model and returns the text reply.
func (a *Assistant) complete(ctx context.Context, userMessage string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages.new: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
