package tokens

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts prompt tokens for one chat model.
type Counter struct {
	model string

	once  sync.Once
	codec tokenizer.Codec
	err   error
}

func NewCounter(model string) *Counter {
	return &Counter{model: strings.TrimSpace(model)}
}

func (c *Counter) Count(text string) (int, error) {
	codec, err := c.load()
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("encode prompt: %w", err)
	}
	return len(ids), nil
}

func (c *Counter) load() (tokenizer.Codec, error) {
	c.once.Do(func() {
		codec, err := tokenizer.ForModel(tokenizer.Model(strings.ToLower(c.model)))
		if err == nil {
			c.codec = codec
			return
		}
		// Unknown and newer models share the o200k encoding.
		c.codec, c.err = tokenizer.Get(tokenizer.O200kBase)
		if c.err != nil {
			c.err = fmt.Errorf("load tokenizer for model %q: %w", c.model, c.err)
		}
	})
	return c.codec, c.err
}
