package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/rag/internal/models"
)

func TestNewSynthesizerWithConfig_Validation(t *testing.T) {
	_, err := NewSynthesizerWithConfig(SynthesizerConfig{MaxTokens: -1, Token: "test"})
	assert.Error(t, err)

	_, err = NewSynthesizerWithConfig(SynthesizerConfig{Temperature: 2.5, Token: "test"})
	assert.Error(t, err)

	synth, err := NewSynthesizerWithConfig(SynthesizerConfig{Token: "test"})
	assert.NoError(t, err)
	assert.NotNil(t, synth)
	assert.Equal(t, "gpt-3.5-turbo", synth.config.Model)
	assert.Equal(t, 1000, synth.config.MaxTokens)
	assert.Equal(t, defaultSystemPrompt, synth.config.SystemPrompt)
}

func TestBuildPrompt(t *testing.T) {
	matches := []models.RetrievedMatch{
		{DocumentID: "doc-a", ChunkIndex: 2, Text: "first passage"},
		{DocumentID: "doc-b", ChunkIndex: 0, Text: "second passage"},
	}

	prompt := buildPrompt("What happened?", matches)

	assert.Contains(t, prompt, "Document doc-a (chunk 2):\nfirst passage")
	assert.Contains(t, prompt, "Document doc-b (chunk 0):\nsecond passage")
	assert.Contains(t, prompt, "Question: What happened?")

	// retrieval order is preserved in the prompt
	assert.Less(t, strings.Index(prompt, "first passage"), strings.Index(prompt, "second passage"))
}

func TestBuildPrompt_EmptyContext(t *testing.T) {
	prompt := buildPrompt("Anything?", nil)

	assert.Contains(t, prompt, "Context:\n")
	assert.Contains(t, prompt, "Question: Anything?")
}

func TestTokenCount(t *testing.T) {
	info := map[string]any{"PromptTokens": 120, "CompletionTokens": 40}

	assert.Equal(t, 120, tokenCount(info, "PromptTokens"))
	assert.Equal(t, 40, tokenCount(info, "CompletionTokens"))
	assert.Equal(t, 0, tokenCount(info, "Missing"))
	assert.Equal(t, 0, tokenCount(nil, "PromptTokens"))
}
