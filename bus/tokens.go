package bus

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding covers GPT-3.5/4 family tokenization and is a reasonable
// budget proxy for other models.
const defaultEncoding = "cl100k_base"

// tokenCounter lazily initialises a tiktoken encoding. Initialisation may
// download the BPE ranks, so it happens once on first use, not at bus
// construction.
type tokenCounter struct {
	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

func newTokenCounter() *tokenCounter {
	return &tokenCounter{}
}

// Count returns the token count of text under the default encoding.
func (c *tokenCounter) Count(text string) (int, error) {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			c.initErr = fmt.Errorf("init tiktoken encoding %s: %w", defaultEncoding, err)
			return
		}
		c.enc = enc
	})
	if c.initErr != nil {
		return 0, c.initErr
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}
