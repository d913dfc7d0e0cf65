package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, ClampScore(-0.3))
	assert.Equal(t, 1.0, ClampScore(1.2))
	assert.Equal(t, 0.55, ClampScore(0.55))
}

func TestEstimateTokensClamped(t *testing.T) {
	assert.Equal(t, 50, EstimateTokens("tiny"), "floor clamp")
	huge := strings.Repeat("many different words flowing ", 2000)
	assert.Equal(t, 2000, EstimateTokens(huge), "ceiling clamp")
}

func TestIsValidURL(t *testing.T) {
	assert.True(t, IsValidURL("https://example.com/article"))
	assert.True(t, IsValidURL("http://example.com"))
	assert.False(t, IsValidURL("ftp://example.com"))
	assert.False(t, IsValidURL("javascript:alert(1)"))
	assert.False(t, IsValidURL(""))
	assert.False(t, IsValidURL("https://"+strings.Repeat("x", 2050)))
}

func TestValidateInput(t *testing.T) {
	got, ok := ValidateInput("  a plain thought  ")
	assert.True(t, ok)
	assert.Equal(t, "a plain thought", got)

	_, ok = ValidateInput("<script>alert(1)</script>")
	assert.False(t, ok)

	_, ok = ValidateInput("bell\x07char")
	assert.False(t, ok)
}

func TestSanitizeForLog(t *testing.T) {
	assert.Equal(t, "line one line two", SanitizeForLog("line one\nline two"))
	assert.NotContains(t, SanitizeForLog("tab\there"), "\t")
}
