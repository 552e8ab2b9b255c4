package ai

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter считает токены строки.
type TokenCounter func(text string) int

// ApproxTokens - грубая оценка (руна/4), используется, когда словарь BPE недоступен.
func ApproxTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// NewTiktokenCounter создает счетчик на словаре tiktoken.
// Словарь загружается при первом вызове, поэтому ошибка возможна без сети.
func NewTiktokenCounter(encoding string) (TokenCounter, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}

// Budget обрезает историю так, чтобы системный промпт и история укладывались в лимит.
type Budget struct {
	MaxTokens int
	Count     TokenCounter
}

// perMessageOverhead - служебные токены на роль и разделители одной реплики.
const perMessageOverhead = 4

// Trim удаляет самые старые реплики, пока запрос не уложится в лимит.
// Последняя реплика сохраняется всегда. MaxTokens <= 0 отключает обрезку.
func (b Budget) Trim(system string, history []Message) []Message {
	if b.MaxTokens <= 0 || len(history) == 0 {
		return history
	}
	count := b.Count
	if count == nil {
		count = ApproxTokens
	}

	costs := make([]int, len(history))
	total := count(system) + perMessageOverhead
	for i, m := range history {
		costs[i] = count(m.Content) + perMessageOverhead
		total += costs[i]
	}

	start := 0
	for total > b.MaxTokens && start < len(history)-1 {
		total -= costs[start]
		start++
	}
	return history[start:]
}
