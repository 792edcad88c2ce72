package imagegen

import (
	"context"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

const defaultPlaceholderBase = "https://picsum.photos/seed"

// Placeholder is the offline provider: the same prompt always maps to the same
// placeholder image URL.
type Placeholder struct {
	baseURL string
}

func NewPlaceholder(baseURL string) *Placeholder {
	if baseURL == "" {
		baseURL = defaultPlaceholderBase
	}
	return &Placeholder{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *Placeholder) Name() string { return "placeholder" }

func (p *Placeholder) Generate(_ context.Context, prompt string, opts *Options) (*Result, error) {
	seed := PromptSeed(prompt)
	size := "1024"
	if opts != nil && opts.Size != "" {
		size = strings.SplitN(opts.Size, "x", 2)[0]
	}

	return &Result{
		ImageURL: fmt.Sprintf("%s/%d/%s/%s", p.baseURL, seed, size, size),
		Metadata: map[string]string{
			"provider": p.Name(),
			"seed":     strconv.FormatUint(uint64(seed), 10),
		},
	}, nil
}

// PromptSeed is a stable 32-bit hash of the prompt text.
func PromptSeed(prompt string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	return h.Sum32()
}
