package markov

import "strings"

// ChainStats holds aggregated statistics for a single chain.
type ChainStats struct {
	Keys           int `json:"keys"`            // The number of unique key phrases.
	Transitions    int `json:"transitions"`     // The number of unique key->successor links.
	TotalFrequency int `json:"total_frequency"` // The sum of frequencies of all links; the number of observed transitions.
	CapitalKeys    int `json:"capital_keys"`    // Keys that can start a sentence.
	TerminalKeys   int `json:"terminal_keys"`   // Keys that end with a period.
}

// Stats returns a snapshot of statistics for the chain.
func (c *Chain) Stats() ChainStats {
	stats := ChainStats{Keys: len(c.keys)}
	for _, key := range c.keys {
		stats.Transitions += len(c.next[key])
		stats.TotalFrequency += c.total[key]
		if startsWithCapital(key) {
			stats.CapitalKeys++
		}
		if strings.HasSuffix(key, ".") {
			stats.TerminalKeys++
		}
	}
	return stats
}
