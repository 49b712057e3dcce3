package concierge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/guest-assistant/internal/booking"
)

// Tool is a function the assistant may call while answering.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Run(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry holds the tools offered to the model.
type Registry struct {
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (Tool, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// Definitions returns the tools in the shape the chat completion API expects,
// sorted by name.
func (r *Registry) Definitions() []openai.Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]openai.Tool, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// UserInfoTool looks up the guest behind a booking number.
type UserInfoTool struct {
	bookings *booking.Directory
}

func NewUserInfoTool(d *booking.Directory) *UserInfoTool {
	return &UserInfoTool{bookings: d}
}

func (t *UserInfoTool) Name() string { return "get_user_info" }

func (t *UserInfoTool) Description() string {
	return "Useful for getting guest information using their booking number. Input should be a booking number (e.g., 'BK123')."
}

func (t *UserInfoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"booking_number":{"type":"string"}},"required":["booking_number"]}`)
}

func (t *UserInfoTool) Run(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		BookingNumber string `json:"booking_number"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("get_user_info: %w", err)
	}
	b, err := t.bookings.Lookup(strings.TrimSpace(in.BookingNumber))
	if err != nil {
		// The model reads lookup failures like any other answer.
		return err.Error(), nil
	}
	return b.Format(), nil
}

// SearchInfoTool searches the guest guides.
type SearchInfoTool struct {
	guides *Guides
}

func NewSearchInfoTool(g *Guides) *SearchInfoTool {
	return &SearchInfoTool{guides: g}
}

func (t *SearchInfoTool) Name() string { return "search_info" }

func (t *SearchInfoTool) Description() string {
	return "Useful for searching information in the guest guides. Input should be a specific question or search query."
}

func (t *SearchInfoTool) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)
}

func (t *SearchInfoTool) Run(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("search_info: %w", err)
	}
	hits := t.guides.Search(ctx, in.Query, 4)
	if len(hits) == 0 {
		return "No relevant information found.", nil
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.Join(texts, "\n\n"), nil
}
