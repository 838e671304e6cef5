package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashd/stash/internal/services/ai"
)

// DefaultMaxTurns bounds one conversation exchange.
const DefaultMaxTurns = 10

// ApologyText is returned when the turn budget runs out without a
// terminal response from the model.
const ApologyText = "I wasn't able to finish that. Could you rephrase or try again?"

// ToolInvocation is one audit-trail record.
type ToolInvocation struct {
	Name   string `json:"name"`
	Input  string `json:"input"`
	Result string `json:"result"`
}

// LoopResult is the outcome of one driven exchange.
type LoopResult struct {
	Text  string
	Audit []ToolInvocation
}

// Loop drives a bounded tool-calling exchange with the language model.
type Loop struct {
	model      ai.LanguageModel
	dispatcher *Dispatcher
	logger     *zap.Logger
	maxTurns   int
}

// NewLoop creates an agent loop. maxTurns <= 0 selects the default.
func NewLoop(model ai.LanguageModel, dispatcher *Dispatcher, logger *zap.Logger, maxTurns int) *Loop {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Loop{model: model, dispatcher: dispatcher, logger: logger, maxTurns: maxTurns}
}

// Run sends the message list and executes tool calls until the model
// stops asking for tools or the turn budget runs out. Tool failures
// are converted to model-visible error strings and the loop continues;
// only a transport failure from the model propagates.
func (l *Loop) Run(ctx context.Context, ownerID uuid.UUID, messages []ai.ChatMessage) (*LoopResult, error) {
	result := &LoopResult{}

	for turn := 0; turn < l.maxTurns; turn++ {
		resp, err := l.model.CompleteWithTools(ctx, messages, Catalog())
		if err != nil {
			return nil, fmt.Errorf("model request failed on turn %d: %w", turn+1, err)
		}

		if resp.StopReason != ai.StopToolUse || len(resp.ToolCalls) == 0 {
			result.Text = resp.AllText()
			return result, nil
		}

		messages = append(messages, ai.ChatMessage{
			Role:      ai.RoleAssistant,
			Content:   resp.FirstText(),
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			toolResult := l.executeSafely(ctx, ownerID, call)
			result.Audit = append(result.Audit, ToolInvocation{
				Name:   call.Name,
				Input:  call.Arguments,
				Result: toolResult,
			})
			messages = append(messages, ai.ChatMessage{
				Role:       ai.RoleTool,
				Content:    toolResult,
				ToolCallID: call.ID,
			})
		}
	}

	l.logger.Warn("agent turn budget exhausted",
		zap.String("owner_id", ownerID.String()),
		zap.Int("max_turns", l.maxTurns))
	result.Text = ApologyText
	return result, nil
}

// executeSafely runs one tool call, containing panics and malformed
// arguments as error results the model can read.
func (l *Loop) executeSafely(ctx context.Context, ownerID uuid.UUID, call ai.ToolCall) (out string) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("tool handler panicked",
				zap.String("tool", call.Name),
				zap.Any("panic", r))
			out = errResult(fmt.Sprintf("tool %s failed unexpectedly", call.Name))
		}
	}()

	input := json.RawMessage(call.Arguments)
	if len(input) == 0 {
		input = json.RawMessage("{}")
	} else if !json.Valid(input) {
		return errResult(fmt.Sprintf("tool %s received malformed arguments", call.Name))
	}
	return l.dispatcher.Execute(ctx, ownerID, call.Name, input)
}
