package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"prompt-guess-game/logger"
	"prompt-guess-game/models"
	"prompt-guess-game/utils"

	"github.com/rs/zerolog"
)

// Rewriter turns a draft prompt into a more natural one. The Ollama client
// satisfies it.
type Rewriter interface {
	Generate(ctx context.Context, prompt, system string) (string, error)
}

const (
	rewriteSystem = "You write prompts for an image generator. Reply with the prompt only, one sentence, no quotes."
	maxPromptLen  = 300
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

type PromptService struct {
	rewriter Rewriter
	log      zerolog.Logger
}

// NewPromptService returns a prompt builder. A nil rewriter keeps every
// prompt on the template path.
func NewPromptService(rewriter Rewriter) *PromptService {
	return &PromptService{rewriter: rewriter, log: logger.Component("prompts")}
}

// GeneratePromptFromWords builds the round prompt and reports which path
// produced it. Rewriter failures fall back to the template.
func (s *PromptService) GeneratePromptFromWords(ctx context.Context, words []models.WordBankEntry) (string, models.PromptSource) {
	draft := AssemblePrompt(words)
	if s.rewriter == nil || len(words) == 0 {
		return draft, models.PromptSourceTemplated
	}

	list := make([]string, len(words))
	for i, w := range words {
		list[i] = w.Word
	}
	request := fmt.Sprintf(
		"Rewrite this image description as one vivid sentence under 30 words. Keep every one of these words: %s.\nDescription: %s",
		strings.Join(list, ", "), draft,
	)

	out, err := s.rewriter.Generate(ctx, request, rewriteSystem)
	if err != nil {
		s.log.Warn().Err(err).Msg("prompt rewrite failed, using template")
		return draft, models.PromptSourceTemplated
	}
	prompt, ok := cleanRewrite(out, list)
	if !ok {
		s.log.Warn().Str("output", out).Msg("prompt rewrite rejected, using template")
		return draft, models.PromptSourceTemplated
	}
	return prompt, models.PromptSourceGenerated
}

// cleanRewrite strips reasoning blocks and quoting and rejects output that
// lost most of the seed words.
func cleanRewrite(out string, words []string) (string, bool) {
	out = thinkBlock.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	out = strings.Trim(out, "\"'` ")
	if out == "" || len(out) > maxPromptLen || strings.Contains(out, "\n") {
		return "", false
	}

	have := map[string]struct{}{}
	for _, tok := range utils.Tokenize(out) {
		have[tok] = struct{}{}
	}
	kept := 0
	for _, w := range words {
		if _, ok := have[utils.NormalizeText(w)]; ok {
			kept++
		}
	}
	if kept*2 < len(words) {
		return "", false
	}
	return out, true
}

// AssemblePrompt renders words into a fixed sentence:
// "A <descriptors> <subject> and a <subject> <actions> in a <settings>, <styles> style".
// The output depends only on the words and their order.
func AssemblePrompt(words []models.WordBankEntry) string {
	byCategory := map[string][]string{}
	var extras []string
	for _, w := range words {
		switch w.Category {
		case models.CategorySubject, models.CategoryDescriptor, models.CategoryAction,
			models.CategorySetting, models.CategoryStyle:
			byCategory[w.Category] = append(byCategory[w.Category], w.Word)
		default:
			extras = append(extras, w.Word)
		}
	}

	subjects := byCategory[models.CategorySubject]
	if len(subjects) == 0 {
		subjects = []string{"scene"}
	}

	lead := strings.Join(append(byCategory[models.CategoryDescriptor], subjects[0]), " ")
	nouns := []string{withArticle(lead)}
	for _, subj := range subjects[1:] {
		nouns = append(nouns, withArticle(subj))
	}

	var b strings.Builder
	b.WriteString(joinAnd(nouns))
	if len(extras) > 0 {
		b.WriteString(" with ")
		b.WriteString(joinAnd(extras))
	}
	if actions := byCategory[models.CategoryAction]; len(actions) > 0 {
		b.WriteString(" ")
		b.WriteString(joinAnd(actions))
	}
	if settings := byCategory[models.CategorySetting]; len(settings) > 0 {
		places := make([]string, len(settings))
		for i, s := range settings {
			places[i] = withArticle(s)
		}
		b.WriteString(" in ")
		b.WriteString(strings.Join(places, " near "))
	}
	if styles := byCategory[models.CategoryStyle]; len(styles) > 0 {
		b.WriteString(", ")
		b.WriteString(joinAnd(styles))
		b.WriteString(" style")
	}

	prompt := b.String()
	return strings.ToUpper(prompt[:1]) + prompt[1:]
}

func withArticle(phrase string) string {
	if phrase == "" {
		return phrase
	}
	switch phrase[0] {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return "an " + phrase
	}
	return "a " + phrase
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}
