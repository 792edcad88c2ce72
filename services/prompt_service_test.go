package services

import (
	"context"
	"errors"
	"testing"

	"prompt-guess-game/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func word(w, category string) models.WordBankEntry {
	return models.WordBankEntry{Word: w, Category: category}
}

func TestAssemblePrompt(t *testing.T) {
	tests := []struct {
		name  string
		words []models.WordBankEntry
		want  string
	}{
		{
			name: "full set",
			words: []models.WordBankEntry{
				word("fox", models.CategorySubject),
				word("glowing", models.CategoryDescriptor),
				word("dancing", models.CategoryAction),
				word("library", models.CategorySetting),
				word("watercolor", models.CategoryStyle),
			},
			want: "A glowing fox dancing in a library, watercolor style",
		},
		{
			name: "two subjects and article choice",
			words: []models.WordBankEntry{
				word("owl", models.CategorySubject),
				word("robot", models.CategorySubject),
				word("ancient", models.CategoryDescriptor),
				word("attic", models.CategorySetting),
			},
			want: "An ancient owl and a robot in an attic",
		},
		{
			name: "no subject",
			words: []models.WordBankEntry{
				word("stormy", models.CategoryDescriptor),
				word("sketch", models.CategoryStyle),
				word("origami", models.CategoryStyle),
			},
			want: "A stormy scene, sketch and origami style",
		},
		{
			name: "unknown category",
			words: []models.WordBankEntry{
				word("cat", models.CategorySubject),
				word("umbrella", "object"),
			},
			want: "A cat with umbrella",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssemblePrompt(tt.words))
		})
	}
}

func TestAssemblePromptIsDeterministic(t *testing.T) {
	words := []models.WordBankEntry{word("whale", models.CategorySubject), word("neon", models.CategoryDescriptor)}
	assert.Equal(t, AssemblePrompt(words), AssemblePrompt(words))
}

type mockRewriter struct{ mock.Mock }

func (m *mockRewriter) Generate(ctx context.Context, prompt, system string) (string, error) {
	args := m.Called(ctx, prompt, system)
	return args.String(0), args.Error(1)
}

func TestGeneratePromptTemplateOnly(t *testing.T) {
	s := NewPromptService(nil)
	prompt, source := s.GeneratePromptFromWords(context.Background(), []models.WordBankEntry{word("fox", models.CategorySubject)})
	assert.Equal(t, "A fox", prompt)
	assert.Equal(t, models.PromptSourceTemplated, source)
}

func TestGeneratePromptUsesRewriter(t *testing.T) {
	r := &mockRewriter{}
	r.On("Generate", mock.Anything, mock.Anything, rewriteSystem).
		Return("<think>hmm</think>\n\"A glowing fox waltzes through a quiet library\"", nil)

	s := NewPromptService(r)
	prompt, source := s.GeneratePromptFromWords(context.Background(), []models.WordBankEntry{
		word("fox", models.CategorySubject),
		word("glowing", models.CategoryDescriptor),
		word("library", models.CategorySetting),
	})

	assert.Equal(t, "A glowing fox waltzes through a quiet library", prompt)
	assert.Equal(t, models.PromptSourceGenerated, source)
	r.AssertExpectations(t)
}

func TestGeneratePromptFallsBack(t *testing.T) {
	words := []models.WordBankEntry{
		word("fox", models.CategorySubject),
		word("glowing", models.CategoryDescriptor),
		word("library", models.CategorySetting),
	}

	tests := []struct {
		name string
		out  string
		err  error
	}{
		{"error", "", errors.New("connection refused")},
		{"empty", "   ", nil},
		{"lost the words", "A cat sleeping on a sofa", nil},
		{"multi line", "A glowing fox\nin a library", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockRewriter{}
			r.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return(tt.out, tt.err)

			prompt, source := NewPromptService(r).GeneratePromptFromWords(context.Background(), words)
			assert.Equal(t, AssemblePrompt(words), prompt)
			assert.Equal(t, models.PromptSourceTemplated, source)
		})
	}
}
