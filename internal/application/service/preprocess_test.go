package service

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	preprocessOnce sync.Once
	preprocessSvc  *PreprocessService
)

// sharedPreprocess reuses one segmenter across tests; its dictionaries are
// expensive to load.
func sharedPreprocess() *PreprocessService {
	preprocessOnce.Do(func() {
		preprocessSvc = NewPreprocessService()
	})
	return preprocessSvc
}

func TestPreprocessEmptyBody(t *testing.T) {
	result := sharedPreprocess().Process("", DefaultPreprocessConfig())
	assert.Empty(t, result.ProcessedText)
	assert.Zero(t, result.ParagraphCount)
	assert.Equal(t, 1.0, result.CompressionRatio)
}

func TestPreprocessShortBodyKeptWhole(t *testing.T) {
	body := "One paragraph only. It has two sentences."
	result := sharedPreprocess().Process(body, DefaultPreprocessConfig())
	assert.Equal(t, body, result.ProcessedText)
}

func longEnglishBody() string {
	topics := []string{
		"Neural networks learn hierarchical representations from raw data. Deep models stack many layers of simple transformations. Training uses gradient descent over a differentiable loss.",
		"The weather this weekend should be mild with occasional rain. Umbrellas are advisable for the Saturday market. Sunday looks brighter in most regions.",
		"Attention mechanisms let a model weigh every input position. Transformers replaced recurrence with self attention entirely. This made training dramatically more parallel.",
		"Cooking pasta requires salted boiling water and good timing. Fresh herbs lift a simple sauce considerably. Leftovers keep well for a day or two.",
		"Gradient descent updates parameters against the loss surface. Learning rates control the step size of each update. Momentum smooths noisy gradient estimates.",
		"Public transport schedules change during the holidays. Night buses replace some late train services. Check the operator website before traveling.",
		"Regularization prevents overfitting in deep neural networks. Dropout randomly silences units during training. Weight decay keeps parameters small.",
		"Gardening in spring starts with preparing the soil. Compost improves both drainage and nutrition. Seedlings need hardening before transplanting.",
	}
	return strings.Join(topics, "\n\n")
}

func TestPreprocessModes(t *testing.T) {
	body := longEnglishBody()
	svc := sharedPreprocess()

	strictCfg := DefaultPreprocessConfig()
	strictCfg.Mode = PreprocessStrict
	strict := svc.Process(body, strictCfg)

	balancedCfg := DefaultPreprocessConfig()
	balanced := svc.Process(body, balancedCfg)

	preserveCfg := DefaultPreprocessConfig()
	preserveCfg.Mode = PreprocessPreserve
	preserveCfg.PreserveRatio = 1.0
	preserve := svc.Process(body, preserveCfg)

	assert.LessOrEqual(t, strict.ParagraphCount, balanced.ParagraphCount,
		"balanced adds the context window around strict's selection")
	assert.Equal(t, 8, preserve.ParagraphCount,
		"preserve with ratio 1.0 keeps every paragraph")
	assert.Equal(t, "strict", strict.Method)
	assert.Equal(t, "balanced", balanced.Method)
}

func TestPreprocessStrictSelectsTopK(t *testing.T) {
	cfg := DefaultPreprocessConfig()
	cfg.Mode = PreprocessStrict
	cfg.TopParagraphs = 2
	result := sharedPreprocess().Process(longEnglishBody(), cfg)
	assert.Equal(t, 2, result.ParagraphCount)
	assert.Less(t, result.CompressionRatio, 1.0)
}

func TestPreprocessPreserveRatioClamped(t *testing.T) {
	cfg := DefaultPreprocessConfig()
	cfg.Mode = PreprocessPreserve
	cfg.PreserveRatio = 0.01 // below the floor; clamps to 0.1
	result := sharedPreprocess().Process(longEnglishBody(), cfg)
	assert.GreaterOrEqual(t, result.ParagraphCount, 1)
}

func TestPreprocessKeepsOriginalOrder(t *testing.T) {
	body := longEnglishBody()
	cfg := DefaultPreprocessConfig()
	cfg.Mode = PreprocessPreserve
	cfg.PreserveRatio = 1.0
	result := sharedPreprocess().Process(body, cfg)

	paragraphs := strings.Split(body, "\n\n")
	lastIdx := -1
	for _, p := range paragraphs {
		idx := strings.Index(result.ProcessedText, p[:40])
		require.GreaterOrEqual(t, idx, 0)
		assert.Greater(t, idx, lastIdx, "paragraph order is preserved")
		lastIdx = idx
	}
}

func TestSplitSentencesLatin(t *testing.T) {
	svc := sharedPreprocess()
	sentences := svc.splitSentences("Dr. Smith arrived late. The meeting had started. Everyone noticed!")
	require.Len(t, sentences, 3)
	assert.Equal(t, "Dr. Smith arrived late.", sentences[0])
}

func TestSplitSentencesCJK(t *testing.T) {
	svc := sharedPreprocess()
	sentences := svc.splitSentences("今天天气很好。我们去公园散步！你要一起来吗？")
	assert.Len(t, sentences, 3)
}

func TestIsCJKHeavy(t *testing.T) {
	assert.True(t, isCJKHeavy("机器学习是人工智能的一个分支"))
	assert.False(t, isCJKHeavy("machine learning is a branch of AI"))
	assert.True(t, isCJKHeavy("机器学习 machine learning 深度学习 deep"))
}

func TestRankSentencesReturnsAllWhenFew(t *testing.T) {
	svc := sharedPreprocess()
	sentences := []string{"First sentence here.", "Second sentence there."}
	key := svc.rankSentences(sentences, DefaultPreprocessConfig())
	assert.Equal(t, sentences, key)
}
