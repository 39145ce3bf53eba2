package pipeline

import "github.com/tiktoken-go/tokenizer"

// tokenCounter estimates prompt sizes. Claude and Gemini tokenize similarly
// enough to GPT-4 for budgeting purposes, so one codec serves all providers.
type tokenCounter struct {
	codec tokenizer.Codec
}

func newTokenCounter() *tokenCounter {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return &tokenCounter{}
	}
	return &tokenCounter{codec: codec}
}

// count returns the token count for text, falling back to a 4-chars-per-token
// estimate when no codec is available.
func (tc *tokenCounter) count(text string) int {
	if tc.codec == nil {
		return len(text) / 4
	}
	n, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}
