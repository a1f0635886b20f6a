package markov

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyInput is returned when a stream ends before the first phrase window fills.
	ErrEmptyInput = errors.New("markov: input shorter than chain length")
	// ErrEmptyModel is returned when generating from a chain that has no phrases.
	ErrEmptyModel = errors.New("markov: chain has no phrases")
	// ErrInvalidOrder is returned for a chain length below one.
	ErrInvalidOrder = errors.New("markov: chain length must be at least 1")
)

// ChainPhrase represents a potential next phrase in a Markov chain, including
// its text and its frequency of occurrence after a given key phrase.
type ChainPhrase struct {
	Text string
	Freq int
}

// StyleFlags records the writing conventions observed in a corpus. A flag is
// set by the first phrase that shows the convention and is never cleared.
type StyleFlags struct {
	ContainsCapitals    bool `json:"contains_capitals"`
	ContainsPunctuation bool `json:"contains_punctuation"`
}

// Chain maps each phrase of Order tokens to the phrases observed to follow it.
// A successor seen K times after a key has frequency K, so weighted sampling
// reproduces the corpus transition frequencies.
//
// Keys and successors are kept in first-observation order, which makes
// sampling with a seeded generator reproducible. A Chain is not modified
// after it is built and is safe for concurrent readers.
type Chain struct {
	order int
	keys  []string
	next  map[string][]ChainPhrase
	total map[string]int
	flags StyleFlags
}

func newChain(order int) *Chain {
	return &Chain{
		order: order,
		next:  make(map[string][]ChainPhrase),
		total: make(map[string]int),
	}
}

// Order returns the number of tokens per phrase.
func (c *Chain) Order() int { return c.order }

// Len returns the number of key phrases.
func (c *Chain) Len() int { return len(c.keys) }

// Flags returns the style flags detected while building.
func (c *Chain) Flags() StyleFlags { return c.flags }

// Keys returns every key phrase in first-observation order.
func (c *Chain) Keys() []string {
	keys := make([]string, len(c.keys))
	copy(keys, c.keys)
	return keys
}

// Next returns all phrases that may follow key along with the sum of their
// frequencies. An unknown key returns a nil slice and a total of 0.
func (c *Chain) Next(key string) ([]ChainPhrase, int) {
	choices, ok := c.next[key]
	if !ok {
		return nil, 0
	}
	out := make([]ChainPhrase, len(choices))
	copy(out, choices)
	return out, c.total[key]
}

// Successors returns the successors of key with each phrase repeated once per
// observation.
func (c *Chain) Successors(key string) []string {
	var out []string
	for _, choice := range c.next[key] {
		for i := 0; i < choice.Freq; i++ {
			out = append(out, choice.Text)
		}
	}
	return out
}

// add records freq observations of next following key.
func (c *Chain) add(key, next string, freq int) {
	choices, ok := c.next[key]
	if !ok {
		c.keys = append(c.keys, key)
	}
	for i := range choices {
		if choices[i].Text == next {
			choices[i].Freq += freq
			c.total[key] += freq
			return
		}
	}
	c.next[key] = append(choices, ChainPhrase{Text: next, Freq: freq})
	c.total[key] += freq
}

// observe updates the style flags from a key phrase.
func (c *Chain) observe(key string) {
	if !c.flags.ContainsCapitals && startsWithCapital(key) {
		c.flags.ContainsCapitals = true
	}
	if !c.flags.ContainsPunctuation && strings.HasSuffix(key, ".") {
		c.flags.ContainsPunctuation = true
	}
}

// startsWithCapital reports whether a phrase begins with an ASCII capital letter.
func startsWithCapital(phrase string) bool {
	return len(phrase) > 0 && phrase[0] >= 'A' && phrase[0] <= 'Z'
}

// lastWord returns the final space-separated word of a phrase.
func lastWord(phrase string) string {
	return phrase[strings.LastIndexByte(phrase, ' ')+1:]
}
