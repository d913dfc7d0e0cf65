package utils

import (
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func getEncoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}

// EstimateTokens estimates a chunk's token count: a real BPE
// count when the cl100k_base encoding is loadable, falling back to the
// chars/3.5 heuristic (clamped to [50,2000]) otherwise.
func EstimateTokens(text string) int {
	var n int
	if e := getEncoding(); e != nil {
		n = len(e.Encode(text, nil, nil))
	} else {
		n = int(float64(len(text)) / 3.5)
	}
	if n < 50 {
		n = 50
	}
	if n > 2000 {
		n = 2000
	}
	return n
}

// EstimateTokensUnclamped is used by the context builder's running budget,
// where clamping per-chunk would distort the aggregate token count.
func EstimateTokensUnclamped(text string) int {
	if e := getEncoding(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return int(float64(len(text)) / 3.5)
}
