package enhance

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"
)

// Enhancer rewrites terse user prompts into detailed image prompts and
// produces short in-game reaction lines.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
	Reaction(ctx context.Context, in ReactionInput) (string, error)
}

// ReactionInput describes one caught-a-fish moment for the reaction
// generator.
type ReactionInput struct {
	Location string `json:"location"`
	Human    string `json:"human"`
	Boat     string `json:"boat"`
	Fish     string `json:"fish"`
	Size     string `json:"size"`
}

var _ Enhancer = (*Gemini)(nil)

// Gemini implements Enhancer with the Gemini API via the genai Go SDK.
type Gemini struct {
	apiKey         string
	model          string
	enhancerPrompt string
	reactionPrompt string
	maxTokens      int32

	once    sync.Once
	client  *genai.Client
	initErr error
}

// GeminiOption configures a Gemini enhancer.
type GeminiOption func(*Gemini)

// WithModel overrides the model name.
func WithModel(model string) GeminiOption {
	return func(g *Gemini) { g.model = model }
}

// WithMaxTokens caps enhanced-prompt output length.
func WithMaxTokens(n int32) GeminiOption {
	return func(g *Gemini) { g.maxTokens = n }
}

// NewGemini creates a Gemini-backed enhancer. The system instructions are
// passed in as text; callers load them from their prompt files.
func NewGemini(apiKey, enhancerPrompt, reactionPrompt string, opts ...GeminiOption) *Gemini {
	g := &Gemini{
		apiKey:         apiKey,
		model:          "gemini-2.5-flash-preview-05-20",
		enhancerPrompt: enhancerPrompt,
		reactionPrompt: reactionPrompt,
		maxTokens:      500,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ensureClient lazily initializes the genai.Client on first use.
func (g *Gemini) ensureClient(ctx context.Context) error {
	g.once.Do(func() {
		g.client, g.initErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
	return g.initErr
}

// Enhance expands a terse asset prompt into a detailed one.
func (g *Gemini) Enhance(ctx context.Context, prompt string) (string, error) {
	if err := g.ensureClient(ctx); err != nil {
		return "", fmt.Errorf("enhance: client init failed: %w", err)
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.enhancerPrompt, genai.RoleUser),
		MaxOutputTokens:   g.maxTokens,
		Temperature:       genai.Ptr[float32](0.1),
		ThinkingConfig:    &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("enhance: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("enhance: empty model response")
	}
	return text, nil
}

// Reaction produces a one-liner reacting to a catch.
func (g *Gemini) Reaction(ctx context.Context, in ReactionInput) (string, error) {
	if err := g.ensureClient(ctx); err != nil {
		return "", fmt.Errorf("enhance: client init failed: %w", err)
	}

	prompt := fmt.Sprintf("location: %s\ncharacter: %s\nboat: %s\nfish: %s\nsize: %s",
		in.Location, in.Human, in.Boat, in.Fish, in.Size)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(g.reactionPrompt, genai.RoleUser),
		MaxOutputTokens:   30,
		Temperature:       genai.Ptr[float32](1),
		ThinkingConfig:    &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("enhance: reaction: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}
