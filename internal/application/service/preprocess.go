package service

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/yanyiwu/gojieba"
)

// PreprocessMode selects how much of the body survives preprocessing.
type PreprocessMode string

const (
	PreprocessStrict   PreprocessMode = "strict"
	PreprocessBalanced PreprocessMode = "balanced"
	PreprocessPreserve PreprocessMode = "preserve"
)

// PreprocessConfig tunes the key-sentence ranking and paragraph selection.
type PreprocessConfig struct {
	Algorithm     string // "textrank" or "lexrank"
	Mode          PreprocessMode
	KeySentences  int     // top-N key sentences, default 8
	TopParagraphs int     // top-K paragraphs, default 4
	ContextWindow int     // ±W paragraphs around each selected one, default 1
	PreserveRatio float64 // preserve mode retention, in [0.1, 1.0]
}

// DefaultPreprocessConfig is the balanced profile used by ingestion.
func DefaultPreprocessConfig() PreprocessConfig {
	return PreprocessConfig{
		Algorithm:     "textrank",
		Mode:          PreprocessBalanced,
		KeySentences:  8,
		TopParagraphs: 4,
		ContextWindow: 1,
		PreserveRatio: 0.5,
	}
}

// PreprocessResult is the reduced body handed to the summary call and chunker.
type PreprocessResult struct {
	ProcessedText    string
	Method           string
	Algorithm        string
	CompressionRatio float64
	ParagraphCount   int
}

// PreprocessService reduces an extracted body to its most information-bearing
// portion before the LLM summary call: graph-ranked key sentences, then
// paragraph top-K selection with a context window.
type PreprocessService struct {
	jieba *gojieba.Jieba
}

// NewPreprocessService builds the preprocessor. The jieba segmenter loads its
// dictionaries once and is shared process-wide.
func NewPreprocessService() *PreprocessService {
	return &PreprocessService{jieba: gojieba.NewJieba()}
}

// Close frees the segmenter's native dictionaries.
func (s *PreprocessService) Close() {
	if s.jieba != nil {
		s.jieba.Free()
	}
}

// Process runs the full reduction over body: sentence ranking, paragraph
// scoring, then mode-dependent selection.
func (s *PreprocessService) Process(body string, cfg PreprocessConfig) *PreprocessResult {
	body = strings.TrimSpace(body)
	if body == "" {
		return &PreprocessResult{Method: string(cfg.Mode), Algorithm: cfg.Algorithm, CompressionRatio: 1}
	}

	paragraphs := splitParagraphs(body)
	sentences := s.splitSentences(body)
	keySentences := s.rankSentences(sentences, cfg)

	scores := s.scoreParagraphs(paragraphs, keySentences)
	selected := topKIndexes(scores, cfg.TopParagraphs)

	var kept []int
	switch cfg.Mode {
	case PreprocessStrict:
		kept = selected
	case PreprocessPreserve:
		kept = preserveIndexes(scores, cfg.PreserveRatio)
	default: // balanced
		kept = expandWindow(selected, cfg.ContextWindow, len(paragraphs))
	}

	var out []string
	for _, idx := range kept {
		out = append(out, paragraphs[idx])
	}
	processed := strings.Join(out, "\n\n")
	ratio := 1.0
	if len(body) > 0 {
		ratio = float64(len(processed)) / float64(len(body))
	}
	return &PreprocessResult{
		ProcessedText:    processed,
		Method:           string(cfg.Mode),
		Algorithm:        cfg.Algorithm,
		CompressionRatio: ratio,
		ParagraphCount:   len(kept),
	}
}

func splitParagraphs(body string) []string {
	raw := strings.Split(body, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// latinAbbreviations keeps sentence splitting from breaking on common
// abbreviation periods.
var latinAbbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"e.g": {}, "i.e": {}, "etc": {}, "vs": {}, "fig": {}, "al": {}, "st": {},
	"no": {}, "vol": {}, "inc": {}, "ltd": {}, "co": {}, "approx": {},
}

// splitSentences is language-detected: CJK-heavy text uses the character
// terminator set, Latin text uses punctuation plus the abbreviation table.
func (s *PreprocessService) splitSentences(body string) []string {
	if isCJKHeavy(body) {
		return splitCJKSentences(body)
	}
	return splitLatinSentences(body)
}

func isCJKHeavy(text string) bool {
	var cjk, letters int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r):
			cjk++
		case unicode.IsLetter(r):
			letters++
		}
	}
	return cjk > 0 && cjk*4 >= letters
}

func splitCJKSentences(body string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range body {
		current.WriteRune(r)
		switch r {
		case '。', '！', '？', '；', '…', '\n':
			if sent := strings.TrimSpace(current.String()); sent != "" && sent != string(r) {
				sentences = append(sentences, sent)
			}
			current.Reset()
		}
	}
	if sent := strings.TrimSpace(current.String()); sent != "" {
		sentences = append(sentences, sent)
	}
	return sentences
}

func splitLatinSentences(body string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(strings.ReplaceAll(body, "\n", " "))
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// End of input or followed by a space or tab.
		next := ' '
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		if next != ' ' && next != '\t' {
			continue
		}
		if r == '.' && isAbbreviation(current.String()) {
			continue
		}
		if sent := strings.TrimSpace(current.String()); len(sent) > 1 {
			sentences = append(sentences, sent)
		}
		current.Reset()
	}
	if sent := strings.TrimSpace(current.String()); len(sent) > 1 {
		sentences = append(sentences, sent)
	}
	return sentences
}

func isAbbreviation(prefix string) bool {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	idx := strings.LastIndexFunc(prefix, func(r rune) bool { return r == ' ' })
	word := strings.ToLower(prefix[idx+1:])
	if _, ok := latinAbbreviations[word]; ok {
		return true
	}
	// Single-letter initials like "J." are never sentence ends.
	return len(word) == 1
}

// tokenize produces lowercase word tokens, using the jieba segmenter for
// CJK text and whitespace splitting for Latin text.
func (s *PreprocessService) tokenize(text string) []string {
	var words []string
	if isCJKHeavy(text) && s.jieba != nil {
		words = s.jieba.CutForSearch(text, true)
	} else {
		words = strings.FieldsFunc(text, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if len([]rune(w)) > 1 || unicode.Is(unicode.Han, []rune(w + " ")[0]) {
			out = append(out, w)
		}
	}
	return out
}

// rankSentences runs a PageRank-style power iteration over the sentence
// similarity graph and returns the top-N key sentences.
func (s *PreprocessService) rankSentences(sentences []string, cfg PreprocessConfig) []string {
	n := len(sentences)
	if n == 0 {
		return nil
	}
	limit := cfg.KeySentences
	if limit <= 0 {
		limit = 8
	}
	if n <= limit {
		return sentences
	}

	tokens := make([][]string, n)
	for i, sent := range sentences {
		tokens[i] = s.tokenize(sent)
	}

	weights := make([][]float64, n)
	for i := range weights {
		weights[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var w float64
			if cfg.Algorithm == "lexrank" {
				w = tfCosine(tokens[i], tokens[j])
				if w < 0.1 {
					w = 0
				}
			} else {
				w = textrankOverlap(tokens[i], tokens[j])
			}
			weights[i][j] = w
			weights[j][i] = w
		}
	}

	const damping = 0.85
	const iterations = 30
	rank := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}
	outSum := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			outSum[i] += weights[i][j]
		}
	}
	for iter := 0; iter < iterations; iter++ {
		next := make([]float64, n)
		for i := 0; i < n; i++ {
			var acc float64
			for j := 0; j < n; j++ {
				if weights[j][i] > 0 && outSum[j] > 0 {
					acc += rank[j] * weights[j][i] / outSum[j]
				}
			}
			next[i] = (1-damping)/float64(n) + damping*acc
		}
		rank = next
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return rank[idx[a]] > rank[idx[b]] })
	top := idx[:limit]
	// Key sentences keep document order for verbatim containment checks.
	sort.Ints(top)
	out := make([]string, 0, limit)
	for _, i := range top {
		out = append(out, sentences[i])
	}
	return out
}

func textrankOverlap(a, b []string) float64 {
	if len(a) < 2 || len(b) < 2 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, w := range a {
		set[w] = struct{}{}
	}
	var overlap float64
	for _, w := range b {
		if _, ok := set[w]; ok {
			overlap++
		}
	}
	return overlap / (math.Log(float64(len(a))) + math.Log(float64(len(b))))
}

func tfCosine(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	fa := termFreq(a)
	fb := termFreq(b)
	var dot, na, nb float64
	for w, ca := range fa {
		na += ca * ca
		if cb, ok := fb[w]; ok {
			dot += ca * cb
		}
	}
	for _, cb := range fb {
		nb += cb * cb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func termFreq(words []string) map[string]float64 {
	freq := make(map[string]float64, len(words))
	for _, w := range words {
		freq[w]++
	}
	return freq
}

// scoreParagraphs scores each paragraph: +1 per verbatim key sentence,
// +0.5 per key sentence whose word overlap with the paragraph is ≥ 0.6.
func (s *PreprocessService) scoreParagraphs(paragraphs, keySentences []string) []float64 {
	scores := make([]float64, len(paragraphs))
	keyTokens := make([][]string, len(keySentences))
	for i, sent := range keySentences {
		keyTokens[i] = s.tokenize(sent)
	}
	for pi, para := range paragraphs {
		paraTokens := s.tokenize(para)
		paraSet := make(map[string]struct{}, len(paraTokens))
		for _, w := range paraTokens {
			paraSet[w] = struct{}{}
		}
		for si, sent := range keySentences {
			if strings.Contains(para, sent) {
				scores[pi]++
				continue
			}
			if len(keyTokens[si]) == 0 {
				continue
			}
			var hit float64
			for _, w := range keyTokens[si] {
				if _, ok := paraSet[w]; ok {
					hit++
				}
			}
			if hit/float64(len(keyTokens[si])) >= 0.6 {
				scores[pi] += 0.5
			}
		}
	}
	return scores
}

// topKIndexes returns the indexes of the k best-scoring paragraphs in
// original document order.
func topKIndexes(scores []float64, k int) []int {
	if k <= 0 {
		k = 4
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	top := append([]int(nil), idx[:k]...)
	sort.Ints(top)
	return top
}

// expandWindow grows each selected index by ±w and deduplicates, preserving order.
func expandWindow(selected []int, w, total int) []int {
	seen := make(map[int]struct{})
	for _, idx := range selected {
		for d := -w; d <= w; d++ {
			if p := idx + d; p >= 0 && p < total {
				seen[p] = struct{}{}
			}
		}
	}
	out := make([]int, 0, len(seen))
	for i := 0; i < total; i++ {
		if _, ok := seen[i]; ok {
			out = append(out, i)
		}
	}
	return out
}

// preserveIndexes keeps ratio of all paragraphs (rounded up) ordered by
// score, re-sorted into original order.
func preserveIndexes(scores []float64, ratio float64) []int {
	if ratio < 0.1 {
		ratio = 0.1
	}
	if ratio > 1.0 {
		ratio = 1.0
	}
	keep := int(math.Ceil(ratio * float64(len(scores))))
	return topKIndexes(scores, keep)
}
