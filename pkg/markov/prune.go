package markov

// Prune returns a copy of the chain without successor links whose frequency
// is less than or equal to minFreq. This is useful for removing rare, and
// often noisy, transitions. Keys left without successors are dropped, so the
// walk treats them as dead ends.
func (c *Chain) Prune(minFreq int) *Chain {
	pruned := newChain(c.order)
	pruned.flags = c.flags
	for _, key := range c.keys {
		for _, choice := range c.next[key] {
			if choice.Freq > minFreq {
				pruned.add(key, choice.Text, choice.Freq)
			}
		}
	}
	return pruned
}
