package usecase

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"foodcourt/internal/domain"
)

// messageOverheadTokens approximates the per-message wrapping cost
// (role markers, separators) added by chat templates.
const messageOverheadTokens = 4

// TiktokenCounter counts tokens with a tiktoken encoding. Unknown models
// fall back to cl100k_base; if no encoding can be loaded at all (e.g. no
// network for the vocabulary fetch) it estimates from byte length instead.
type TiktokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a counter for the given model name.
func NewTokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

func (t *TiktokenCounter) encoding() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(t.model)
		if err != nil {
			enc, err = tiktoken.GetEncoding("cl100k_base")
			if err != nil {
				return
			}
		}
		t.enc = enc
	})
	return t.enc
}

// CountText returns the token count for a text fragment.
func (t *TiktokenCounter) CountText(text string) int {
	if enc := t.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	// Rough estimate: ~4 bytes per token.
	return len(text) / 4
}

// CountMessages returns the estimated token count for a message history,
// including tool call names and arguments.
func (t *TiktokenCounter) CountMessages(msgs []domain.Message) int {
	total := 0
	for _, m := range msgs {
		total += t.CountText(m.Content) + messageOverheadTokens
		for _, call := range m.ToolCalls {
			total += t.CountText(call.Name) + t.CountText(string(call.Arguments))
		}
	}
	return total
}
