package service

import (
	"strings"

	"github.com/marginalia-labs/marginalia/internal/utils"
)

// Chunk is one ordered output unit of the splitter.
type Chunk struct {
	Index           int
	Text            string
	Size            int
	EstimatedTokens int
}

// ChunkerConfig tunes the recursive splitter.
type ChunkerConfig struct {
	ChunkSize int // target size in characters
	Overlap   int // characters carried over between adjacent chunks
}

// DefaultChunkerConfig is the ingestion default: 1200-char targets with
// 200-char overlap.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{ChunkSize: 1200, Overlap: 200}
}

// ChunkMethod tags persisted chunks with the splitter that produced them.
const ChunkMethod = "recursive"

// separators are tried in order; the empty string means split mid-token.
var separators = []string{"\n\n", "\n", ". ", "; ", ", ", " ", ""}

// ChunkerService is the token-aware recursive splitter with overlap.
type ChunkerService struct {
	cfg ChunkerConfig
}

func NewChunkerService(cfg ChunkerConfig) *ChunkerService {
	if cfg.ChunkSize <= 0 {
		cfg = DefaultChunkerConfig()
	}
	return &ChunkerService{cfg: cfg}
}

// hardCap is the absolute per-chunk ceiling: 1.25 × target.
func (s *ChunkerService) hardCap() int {
	return s.cfg.ChunkSize + s.cfg.ChunkSize/4
}

// Split divides text into overlapping chunks. Empty input yields zero chunks;
// chunk_index values are contiguous from 0.
func (s *ChunkerService) Split(text string) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	pieces := s.splitRecursive([]rune(text), 0)

	chunks := make([]Chunk, 0, len(pieces))
	var prev []rune
	for _, piece := range pieces {
		body := piece
		if len(prev) > 0 && s.cfg.Overlap > 0 {
			tail := prev
			if len(tail) > s.cfg.Overlap {
				tail = tail[len(tail)-s.cfg.Overlap:]
			}
			merged := make([]rune, 0, len(tail)+len(body))
			merged = append(merged, tail...)
			merged = append(merged, body...)
			// Overlap never pushes a chunk past the hard cap.
			if len(merged) > s.hardCap() {
				merged = merged[len(merged)-s.hardCap():]
			}
			body = merged
		}
		chunkText := strings.TrimSpace(string(body))
		if chunkText == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Index:           len(chunks),
			Text:            chunkText,
			Size:            len(chunkText),
			EstimatedTokens: utils.EstimateTokens(chunkText),
		})
		prev = piece
	}
	return chunks
}

// splitRecursive cuts text into pieces no longer than the hard cap, trying
// each separator in order and descending to the next one for oversize parts.
func (s *ChunkerService) splitRecursive(text []rune, sepIdx int) [][]rune {
	if len(text) <= s.cfg.ChunkSize {
		return [][]rune{text}
	}
	if sepIdx >= len(separators) || separators[sepIdx] == "" {
		return s.splitFixed(text)
	}

	sep := separators[sepIdx]
	parts := splitKeepingSep(string(text), sep)

	var out [][]rune
	var current []rune
	for _, part := range parts {
		runes := []rune(part)
		if len(runes) > s.hardCap() {
			// This fragment alone violates the cap; flush and descend.
			if len(current) > 0 {
				out = append(out, current)
				current = nil
			}
			out = append(out, s.splitRecursive(runes, sepIdx+1)...)
			continue
		}
		if len(current)+len(runes) > s.cfg.ChunkSize && len(current) > 0 {
			out = append(out, current)
			current = nil
		}
		current = append(current, runes...)
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

// splitFixed is the last resort: mid-token cuts at exactly the target size.
func (s *ChunkerService) splitFixed(text []rune) [][]rune {
	var out [][]rune
	for len(text) > s.cfg.ChunkSize {
		out = append(out, text[:s.cfg.ChunkSize])
		text = text[s.cfg.ChunkSize:]
	}
	if len(text) > 0 {
		out = append(out, text)
	}
	return out
}

// splitKeepingSep splits on sep, re-attaching the separator to the preceding
// part so nothing is lost from the reassembled text.
func splitKeepingSep(text, sep string) []string {
	parts := strings.Split(text, sep)
	for i := 0; i < len(parts)-1; i++ {
		parts[i] += sep
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
