package resolve

// Similarity is the token-set overlap ratio of two names: shared tokens
// divided by distinct tokens across both, after legal suffixes are stripped.
// It is symmetric and lies in [0,1]; word order is ignored and empty names
// score 0.
func Similarity(a, b string) float64 {
	return overlap(tokenSet(nameTokens(a)), tokenSet(nameTokens(b)))
}

func tokenSet(toks []string) map[string]struct{} {
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}
