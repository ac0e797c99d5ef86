package model

import (
	"log"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts input tokens for context-size estimation.
type Tokenizer interface {
	Count(text string) int
}

type bpeTokenizer struct {
	enc *tiktoken.Tiktoken
}

func (b *bpeTokenizer) Count(text string) int {
	return len(b.enc.Encode(text, nil, nil))
}

// Estimator is the tokenizer fallback: word count plus one per special
// character. Deterministic and cheap; good enough for warning about sessions
// that approach a model's context window.
type Estimator struct{}

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

func (Estimator) Count(text string) int {
	n := len(strings.Fields(text))
	for _, r := range text {
		if strings.ContainsRune(specialChars, r) {
			n++
		}
	}
	return n
}

// ResolveTokenizer turns a configured tokenizer handle into a Tokenizer.
// Handles naming a BPE encoding (cl100k_base, o200k_base, ...) get an exact
// counter; anything else falls back to the estimator.
func ResolveTokenizer(handle string) Tokenizer {
	if handle == "" {
		return Estimator{}
	}
	enc, err := tiktoken.GetEncoding(handle)
	if err != nil {
		log.Printf("[catalogue] tokenizer %q is not a known encoding, using the heuristic estimator", handle)
		return Estimator{}
	}
	return &bpeTokenizer{enc: enc}
}

var (
	tokenizerMu    sync.Mutex
	tokenizerCache = map[string]Tokenizer{}
)

// TokenizerFor resolves a handle once and caches the result; BPE encodings
// load their rank tables on first resolution.
func TokenizerFor(handle string) Tokenizer {
	tokenizerMu.Lock()
	defer tokenizerMu.Unlock()
	if tok, ok := tokenizerCache[handle]; ok {
		return tok
	}
	tok := ResolveTokenizer(handle)
	tokenizerCache[handle] = tok
	return tok
}
