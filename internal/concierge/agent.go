package concierge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/guest-assistant/internal/config"
	"github.com/comigor/guest-assistant/internal/llm"
	"github.com/comigor/guest-assistant/internal/logger"
)

// FSM states of a single agent run.
const (
	StateIdle           = "Idle"
	StateReadyToCallLLM = "ReadyToCallLLM"
	StateExecutingTools = "ExecutingTools"
	StateDone           = "Done"
	StateError          = "Error"
)

// FSM triggers of a single agent run.
const (
	TriggerProcessInput            = "ProcessInput"
	TriggerLLMRespondedWithContent = "LLMRespondedWithContent"
	TriggerLLMRequestedTools       = "LLMRequestedTools"
	TriggerToolsExecutionCompleted = "ToolsExecutionCompleted"
	TriggerErrorOccurred           = "ErrorOccurred"
)

// ErrMaxTurns is returned when the model keeps requesting tools past the turn limit.
var ErrMaxTurns = errors.New("exceeded maximum interaction turns")

const DefaultSystemPrompt = `You are a helpful hotel concierge assistant. When helping guests:
1. Always speak directly to the guest using "you" and "your"
2. Use both user information and general hotel information to provide personalized responses
3. If a guest's preferences are relevant (like dietary restrictions), incorporate them into your recommendations
4. When searching for information, always use the search_info tool to find relevant details from the hotel guide
5. Provide specific, detailed recommendations based on both the guest's context and available information

Remember to be warm and welcoming while maintaining professionalism.`

const defaultMaxTurns = 5

// Answerer produces a reply for a guest query.
type Answerer interface {
	Answer(ctx context.Context, query string) (string, error)
}

// AnswererFunc adapts a function to Answerer.
type AnswererFunc func(ctx context.Context, query string) (string, error)

func (f AnswererFunc) Answer(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}

// Agent answers queries by looping between the model and the registered tools.
type Agent struct {
	llmClient llm.Client
	cfg       config.LLMConfig
	tools     *Registry
}

func NewAgent(client llm.Client, cfg config.LLMConfig, tools *Registry) *Agent {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	if tools == nil {
		tools = NewRegistry()
	}
	return &Agent{llmClient: client, cfg: cfg, tools: tools}
}

type run struct {
	messages    []openai.ChatCompletionMessage
	llmResponse *openai.ChatCompletionResponse
	final       string
	lastError   error
	turn        int
}

// Answer runs the model until it replies with plain content, fails, or uses up its turns.
func (a *Agent) Answer(ctx context.Context, query string) (string, error) {
	r := &run{
		messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.cfg.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	}

	fsm := stateless.NewStateMachineWithMode(StateIdle, stateless.FiringQueued)
	fail := func(ctx context.Context, err error) error {
		r.lastError = err
		return fsm.FireCtx(ctx, TriggerErrorOccurred)
	}

	fsm.Configure(StateIdle).
		Permit(TriggerProcessInput, StateReadyToCallLLM)

	fsm.Configure(StateReadyToCallLLM).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if r.turn >= a.cfg.MaxTurns {
				logger.L.Warn("Max interaction turns reached.", "maxTurns", a.cfg.MaxTurns)
				return fail(ctx, ErrMaxTurns)
			}
			r.turn++
			logger.L.Debug("FSM: Entering StateReadyToCallLLM", "turn", r.turn)

			resp, err := a.llmClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       a.cfg.Model,
				Messages:    r.messages,
				Tools:       a.tools.Definitions(),
				Temperature: a.cfg.Temperature,
			})
			if err != nil {
				logger.L.Error("LLM call failed", "error", err)
				return fail(ctx, err)
			}
			if len(resp.Choices) == 0 {
				return fail(ctx, errors.New("llm returned no choices"))
			}
			r.llmResponse = &resp

			if len(resp.Choices[0].Message.ToolCalls) > 0 {
				return fsm.FireCtx(ctx, TriggerLLMRequestedTools)
			}
			return fsm.FireCtx(ctx, TriggerLLMRespondedWithContent)
		}).
		Permit(TriggerLLMRequestedTools, StateExecutingTools).
		Permit(TriggerLLMRespondedWithContent, StateDone).
		Permit(TriggerErrorOccurred, StateError)

	fsm.Configure(StateExecutingTools).
		OnEntry(func(ctx context.Context, _ ...any) error {
			msg := r.llmResponse.Choices[0].Message
			r.messages = append(r.messages, msg)
			for _, call := range msg.ToolCalls {
				r.messages = append(r.messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    a.runTool(ctx, call),
					ToolCallID: call.ID,
					Name:       call.Function.Name,
				})
			}
			return fsm.FireCtx(ctx, TriggerToolsExecutionCompleted)
		}).
		Permit(TriggerToolsExecutionCompleted, StateReadyToCallLLM).
		Permit(TriggerErrorOccurred, StateError)

	fsm.Configure(StateDone).
		OnEntry(func(context.Context, ...any) error {
			r.final = r.llmResponse.Choices[0].Message.Content
			return nil
		})

	fsm.Configure(StateError).
		OnEntry(func(context.Context, ...any) error {
			if r.lastError == nil {
				r.lastError = errors.New("agent reached error state without a specific error")
			}
			return nil
		})

	if err := fsm.FireCtx(ctx, TriggerProcessInput); err != nil {
		return "", fmt.Errorf("agent: %w", err)
	}

	switch fsm.MustState() {
	case StateDone:
		return r.final, nil
	case StateError:
		return "", r.lastError
	default:
		return "", fmt.Errorf("agent ended in an unexpected state: %v", fsm.MustState())
	}
}

// runTool executes one tool call; failures become text the model can read.
func (a *Agent) runTool(ctx context.Context, call openai.ToolCall) string {
	tool, err := a.tools.Get(call.Function.Name)
	if err != nil {
		logger.L.Warn("LLM requested unknown tool", "tool", call.Function.Name)
		return "Error: " + err.Error()
	}
	args := json.RawMessage(call.Function.Arguments)
	if !json.Valid(args) {
		logger.L.Error("Failed to unmarshal tool arguments for", "function", call.Function.Name)
		return "Error: Could not parse arguments for tool " + call.Function.Name
	}
	logger.L.Debug("Calling tool", "tool", call.Function.Name, "arguments", call.Function.Arguments)
	out, err := tool.Run(ctx, args)
	if err != nil {
		logger.L.Warn("Tool execution failed", "tool", call.Function.Name, "error", err)
		return "Error: " + err.Error()
	}
	return out
}
