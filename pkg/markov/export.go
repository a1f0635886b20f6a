package markov

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ExportedModel is the serializable representation of a built chain,
// used for JSON-based import and export.
type ExportedModel struct {
	Name    string          `json:"name"`
	Order   int             `json:"order"`
	Flags   StyleFlags      `json:"flags"`
	Phrases map[string]int  `json:"phrases"` // phrase_text -> phrase_id
	Chains  []ExportedChain `json:"chains"`
}

// ExportedChain is the serializable representation of a single link
// in a Markov chain, used within an ExportedModel. Links are listed in
// first-observation order.
type ExportedChain struct {
	PrefixID  int `json:"prefix_id"`
	NextID    int `json:"next_id"`
	Frequency int `json:"frequency"`
}

// Export serializes the chain under the given name as indented JSON.
func (c *Chain) Export(name string, w io.Writer) error {
	exported := ExportedModel{
		Name:    name,
		Order:   c.order,
		Flags:   c.flags,
		Phrases: make(map[string]int),
	}

	phraseID := func(text string) int {
		id, ok := exported.Phrases[text]
		if !ok {
			id = len(exported.Phrases)
			exported.Phrases[text] = id
		}
		return id
	}

	for _, key := range c.keys {
		prefixID := phraseID(key)
		for _, choice := range c.next[key] {
			exported.Chains = append(exported.Chains, ExportedChain{
				PrefixID:  prefixID,
				NextID:    phraseID(choice.Text),
				Frequency: choice.Freq,
			})
		}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(exported)
}

// ImportChain reads a JSON model written by Export and rebuilds the chain,
// returning it along with the name it was exported under. Every link is
// checked against the chain overlap rule.
func ImportChain(r io.Reader) (string, *Chain, error) {
	var imported ExportedModel
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return "", nil, fmt.Errorf("failed to decode json model: %w", err)
	}
	if imported.Order < 1 {
		return "", nil, fmt.Errorf("%w: got %d", ErrInvalidOrder, imported.Order)
	}

	idToText := make(map[int]string, len(imported.Phrases))
	for text, id := range imported.Phrases {
		idToText[id] = text
	}

	chain := newChain(imported.Order)
	chain.flags = imported.Flags
	for _, link := range imported.Chains {
		prefix, ok := idToText[link.PrefixID]
		if !ok {
			return "", nil, fmt.Errorf("import consistency error: prefix id %d not found in phrases", link.PrefixID)
		}
		next, ok := idToText[link.NextID]
		if !ok {
			return "", nil, fmt.Errorf("import consistency error: next id %d not found in phrases", link.NextID)
		}
		if link.Frequency < 1 {
			return "", nil, fmt.Errorf("import consistency error: link %q -> %q has frequency %d", prefix, next, link.Frequency)
		}
		if !overlaps(prefix, next, imported.Order) {
			return "", nil, fmt.Errorf("import consistency error: %q cannot follow %q in a chain of length %d", next, prefix, imported.Order)
		}
		chain.add(prefix, next, link.Frequency)
	}

	return imported.Name, chain, nil
}

// overlaps reports whether next is a valid successor of key: both hold order
// words and the first order-1 words of next are the last order-1 words of key.
func overlaps(key, next string, order int) bool {
	keyWords := strings.Split(key, " ")
	nextWords := strings.Split(next, " ")
	if len(keyWords) != order || len(nextWords) != order {
		return false
	}
	for i := 0; i < order-1; i++ {
		if keyWords[i+1] != nextWords[i] {
			return false
		}
	}
	return true
}
