package index

import (
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter counts tokens with a fixed BPE encoding.
// The zero value and nil counters report -1 so callers can tell "not available" from a real zero.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter loads the named encoding.
// Common encodings: "cl100k_base", "o200k_base", "p50k_base". Unknown names fall back to cl100k_base.
func NewTokenCounter(encoding string) (*TokenCounter, error) {
	var enc tokenizer.Encoding
	switch encoding {
	case "p50k_base":
		enc = tokenizer.P50kBase
	case "p50k_edit":
		enc = tokenizer.P50kEdit
	case "r50k_base":
		enc = tokenizer.R50kBase
	case "o200k_base":
		enc = tokenizer.O200kBase
	default:
		enc = tokenizer.Cl100kBase
	}

	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, err
	}
	return &TokenCounter{codec: codec}, nil
}

// Count returns the token count of text, or -1 when it cannot be computed
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.codec == nil {
		return -1
	}
	ids, _, err := tc.codec.Encode(text)
	if err != nil {
		return -1
	}
	return len(ids)
}
