package llm

import (
	"context"
	"fmt"

	"github.com/kadirpekel/persona-core/internal/httpclient"
)

// AnthropicInvoker implements Invoker with a hand-rolled REST client,
// adapted from the teacher's pkg/llms/anthropic.go (AnthropicRequest /
// AnthropicResponse wire types over the Messages API).
type AnthropicInvoker struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	http        *httpclient.Client
}

// AnthropicConfig configures an AnthropicInvoker.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"

// NewAnthropicInvoker builds an AnthropicInvoker.
func NewAnthropicInvoker(cfg AnthropicConfig) (*AnthropicInvoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: anthropic API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	client, err := httpclient.New(httpclient.Config{})
	if err != nil {
		return nil, err
	}

	return &AnthropicInvoker{
		apiKey:      cfg.APIKey,
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		http:        client,
	}, nil
}

func (a *AnthropicInvoker) Name() string { return "anthropic:" + a.model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	Messages    []anthropicMessage  `json:"messages"`
	System      string              `json:"system,omitempty"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   anthropicUsage          `json:"usage"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (a *AnthropicInvoker) Invoke(ctx context.Context, messages []Message) (Response, error) {
	return a.call(ctx, messages, "")
}

func (a *AnthropicInvoker) InvokeStructured(ctx context.Context, req StructuredRequest) (string, error) {
	// Anthropic has no native JSON-schema mode in this hand-rolled client;
	// the schema is folded into the system prompt as an explicit
	// instruction, matching the teacher's prefill-based structured output
	// fallback for providers without first-class schema support.
	schemaNote := "Respond with ONLY a single JSON object matching this schema, no prose: " + schemaToPromptHint(req.Schema)
	resp, err := a.call(ctx, req.Messages, schemaNote)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (a *AnthropicInvoker) call(ctx context.Context, messages []Message, extraSystem string) (Response, error) {
	var system string
	var wire []anthropicMessage
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n"
			}
			system += m.Content
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "assistant"
		}
		wire = append(wire, anthropicMessage{Role: role, Content: m.Content})
	}
	if extraSystem != "" {
		if system != "" {
			system += "\n"
		}
		system += extraSystem
	}

	reqBody := anthropicRequest{
		Model:       a.model,
		Messages:    wire,
		System:      system,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}

	headers := map[string]string{
		"x-api-key":         a.apiKey,
		"anthropic-version": "2023-06-01",
	}

	var out anthropicResponse
	if err := a.http.DoJSON(ctx, anthropicMessagesURL, headers, reqBody, &out); err != nil {
		return Response{}, fmt.Errorf("llm: anthropic call: %w", err)
	}
	if out.Error != nil {
		return Response{}, fmt.Errorf("llm: anthropic error: %s", out.Error.Message)
	}

	text := ""
	for _, block := range out.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return Response{Content: text, Tokens: out.Usage.InputTokens + out.Usage.OutputTokens}, nil
}

func schemaToPromptHint(schema map[string]any) string {
	if schema == nil {
		return "{}"
	}
	props, _ := schema["properties"].(map[string]any)
	hint := "{"
	first := true
	for name := range props {
		if !first {
			hint += ", "
		}
		hint += fmt.Sprintf("%q: ...", name)
		first = false
	}
	hint += "}"
	return hint
}
