package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/rag/internal/models"
)

const defaultSystemPrompt = "You are a helpful assistant that answers questions based on the provided context. " +
	"Use only the information from the context to answer questions. If the context doesn't contain " +
	"enough information to answer the question, say so clearly."

type SynthesizerConfig struct {
	Model        string
	BaseURL      string
	Token        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string
}

// Synthesizer builds a grounding prompt from retrieved chunks and asks
// the language model for an answer, returning the provider's token
// accounting alongside the text.
type Synthesizer struct {
	config SynthesizerConfig
	llm    llms.Model
}

func NewSynthesizerWithConfig(config SynthesizerConfig) (*Synthesizer, error) {
	if config.Model == "" {
		config.Model = "gpt-3.5-turbo"
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = defaultSystemPrompt
	}

	opts := []openai.Option{openai.WithModel(config.Model)}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}
	if config.Token != "" {
		opts = append(opts, openai.WithToken(config.Token))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Synthesizer{
		config: config,
		llm:    llm,
	}, nil
}

// Synthesize answers the question from the retrieved matches, in the
// order the retriever ranked them. An empty match list still issues a
// call; deciding whether to call at all is the pipeline's job.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, matches []models.RetrievedMatch) (models.Answer, error) {
	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, s.config.SystemPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, buildPrompt(question, matches)),
	}

	response, err := s.llm.GenerateContent(ctx, content,
		llms.WithMaxTokens(s.config.MaxTokens),
		llms.WithTemperature(s.config.Temperature),
	)
	if err != nil {
		return models.Answer{}, fmt.Errorf("failed to generate answer: %w", err)
	}
	if len(response.Choices) == 0 {
		return models.Answer{}, fmt.Errorf("failed to generate answer: empty response from LLM")
	}

	choice := response.Choices[0]
	return models.Answer{
		Text:            choice.Content,
		TokensConsumed:  tokenCount(choice.GenerationInfo, "PromptTokens"),
		TokensGenerated: tokenCount(choice.GenerationInfo, "CompletionTokens"),
	}, nil
}

func buildPrompt(question string, matches []models.RetrievedMatch) string {
	sections := make([]string, 0, len(matches))
	for _, m := range matches {
		sections = append(sections, fmt.Sprintf("Document %s (chunk %d):\n%s", m.DocumentID, m.ChunkIndex, m.Text))
	}

	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nPlease provide a comprehensive answer based on the context above.",
		strings.Join(sections, "\n\n"), question)
}

func tokenCount(info map[string]any, key string) int {
	if n, ok := info[key].(int); ok {
		return n
	}
	return 0
}
