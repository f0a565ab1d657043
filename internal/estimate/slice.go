package estimate

// SliceByTokens returns the part of text covering the estimated token range
// [start, end). Negative indices count from the end of the estimated total.
// A boundary that falls inside a multi-token segment is placed by
// interpolating over the segment's characters.
func (e *Estimator) SliceByTokens(text string, start, end int) (string, error) {
	segs, err := e.split(text)
	if err != nil {
		return "", err
	}

	var total int
	for _, s := range segs {
		total += s.tokens
	}

	start = normalizeIndex(start, total)
	end = normalizeIndex(end, total)
	if start >= end {
		return "", nil
	}

	runes := []rune(text)
	from := charOffset(segs, start, len(runes))
	to := charOffset(segs, end, len(runes))
	return string(runes[from:to]), nil
}

func normalizeIndex(i, total int) int {
	if i < 0 {
		i += total
	}
	return min(max(i, 0), total)
}

// charOffset maps a token boundary to a character offset. Zero-token
// segments such as whitespace stay with the tokens before them.
func charOffset(segs []segment, tok, length int) int {
	if tok <= 0 {
		return 0
	}

	var cum int
	for _, s := range segs {
		if s.tokens > 0 && tok < cum+s.tokens {
			return s.start + (tok-cum)*len(s.runes)/s.tokens
		}
		cum += s.tokens
	}
	return length
}
