package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiInvoker implements Invoker against the official Google GenAI SDK,
// adapted from the teacher's pkg/model/gemini/gemini.go (genai.NewClient +
// client.Models.GenerateContent).
type GeminiInvoker struct {
	client      *genai.Client
	model       string
	temperature float64
}

// GeminiConfig configures a GeminiInvoker.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
}

// NewGeminiInvoker builds a GeminiInvoker.
func NewGeminiInvoker(ctx context.Context, cfg GeminiConfig) (*GeminiInvoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: gemini API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}

	return &GeminiInvoker{client: client, model: model, temperature: cfg.Temperature}, nil
}

func (g *GeminiInvoker) Name() string { return "gemini:" + g.model }

func (g *GeminiInvoker) Invoke(ctx context.Context, messages []Message) (Response, error) {
	contents, system := toGeminiContents(messages)
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(g.temperature))}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return Response{}, fmt.Errorf("llm: gemini generate: %w", err)
	}
	return Response{Content: resp.Text(), Tokens: int(resp.UsageMetadata.TotalTokenCount)}, nil
}

func (g *GeminiInvoker) InvokeStructured(ctx context.Context, req StructuredRequest) (string, error) {
	contents, system := toGeminiContents(req.Messages)
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(g.temperature)),
		ResponseMIMEType: "application/json",
	}
	if req.Schema != nil {
		config.ResponseSchema = schemaToGenai(req.Schema)
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("llm: gemini structured generate: %w", err)
	}
	return resp.Text(), nil
}

func toGeminiContents(messages []Message) (contents []*genai.Content, system string) {
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, system
}

// schemaToGenai converts a plain JSON-Schema map (as used by every
// structured-output caller in this module) into genai's typed Schema,
// mirroring the field set the teacher's GeminiRequest.GenerationConfig
// carries (pkg/llms/gemini.go).
func schemaToGenai(schema map[string]any) *genai.Schema {
	s := &genai.Schema{}
	if t, ok := schema["type"].(string); ok {
		s.Type = genaiType(t)
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				s.Properties[name] = schemaToGenai(sub)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = schemaToGenai(items)
	}
	if required, ok := schema["required"].([]string); ok {
		s.Required = required
	}
	if enum, ok := schema["enum"].([]string); ok {
		s.Enum = enum
	}
	return s
}

func genaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
