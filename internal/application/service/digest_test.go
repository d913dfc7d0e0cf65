package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/models/chat"
	"github.com/marginalia-labs/marginalia/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeChat returns a fixed completion for every call.
type fakeChat struct{ reply string }

func (f *fakeChat) Chat(context.Context, []chat.Message, *chat.ChatOptions) (*types.ChatResponse, error) {
	return &types.ChatResponse{Content: f.reply}, nil
}

func (f *fakeChat) ChatStream(context.Context, []chat.Message, *chat.ChatOptions) (<-chan types.StreamResponse, error) {
	ch := make(chan types.StreamResponse, 2)
	ch <- types.StreamResponse{ResponseType: types.ResponseTypeAnswer, Content: f.reply}
	ch <- types.StreamResponse{ResponseType: types.ResponseTypeDone, Done: true}
	close(ch)
	return ch, nil
}

func (f *fakeChat) GetModelName() string { return "fake-model" }
func (f *fakeChat) GetModelID() string   { return "fake-model" }

type fakeInsightRepo struct {
	repository.InsightRepository
	insights []*repository.Insight
}

func (f *fakeInsightRepo) ListCreatedOrUpdatedSince(context.Context, string, int64) ([]*repository.Insight, error) {
	return f.insights, nil
}

type fakeContentRepo struct {
	repository.InsightContentRepository
	summaries map[uuid.UUID]string
}

func (f *fakeContentRepo) GetByInsightID(_ context.Context, id uuid.UUID) (*repository.InsightContent, error) {
	if s, ok := f.summaries[id]; ok {
		return &repository.InsightContent{InsightID: id, Summary: s}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeTagRepo struct {
	repository.TagRepository
	tags map[uuid.UUID][]*repository.UserTag
}

func (f *fakeTagRepo) TagsForInsights(context.Context, []uuid.UUID) (map[uuid.UUID][]*repository.UserTag, error) {
	return f.tags, nil
}

type fakeProfileRepo struct {
	repository.ProfileRepository
	profile *repository.Profile
}

func (f *fakeProfileRepo) GetByID(context.Context, string) (*repository.Profile, error) {
	if f.profile == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.profile, nil
}

func TestDigestBuilderWithActivity(t *testing.T) {
	i1 := &repository.Insight{ID: uuid.New(), Title: "Attention Is All You Need", URL: "https://a"}
	i2 := &repository.Insight{ID: uuid.New(), Title: "Pasta At Home", URL: "https://b"}

	builder := NewDigestBuilder(
		&fakeInsightRepo{insights: []*repository.Insight{i1, i2}},
		&fakeContentRepo{summaries: map[uuid.UUID]string{i1.ID: "the transformer paper"}},
		&fakeTagRepo{tags: map[uuid.UUID][]*repository.UserTag{
			i1.ID: {{Name: "ml"}},
		}},
		&fakeProfileRepo{profile: &repository.Profile{Nickname: "Sam", Email: "sam@example.com"}},
		NewLLMServiceWith(&fakeChat{reply: "a warm weekly recap"}, nil),
	)

	weekStart := WeekStart(time.Now().UTC())
	payload, err := builder.Build(context.Background(), "user-1", weekStart, "Asia/Tokyo", weekStart)
	require.NoError(t, err)

	assert.Equal(t, 2, payload.ActivitySummary.InsightsCount)
	assert.Equal(t, 1, payload.ActivitySummary.TaggedCount)
	assert.Equal(t, "a warm weekly recap", payload.AISummary)
	assert.Equal(t, "Sam", payload.User.Nickname)
	assert.Equal(t, "Asia/Tokyo", payload.User.Timezone)
	assert.Len(t, payload.Sections.Highlights, 2)
	require.Len(t, payload.Sections.Tags, 1)
	assert.Equal(t, "ml", payload.Sections.Tags[0].Name)
	assert.Contains(t, payload.Sections.Tags[0].Articles, "Attention Is All You Need")
	assert.Equal(t, weekStart, payload.Metadata.WeekStart)
}

func TestDigestBuilderNoActivity(t *testing.T) {
	builder := NewDigestBuilder(
		&fakeInsightRepo{},
		&fakeContentRepo{},
		&fakeTagRepo{},
		&fakeProfileRepo{},
		NewLLMServiceWith(&fakeChat{reply: "should not be used"}, nil),
	)

	weekStart := WeekStart(time.Now().UTC())
	payload, err := builder.Build(context.Background(), "user-1", weekStart, "UTC", weekStart)
	require.NoError(t, err)

	assert.Zero(t, payload.ActivitySummary.InsightsCount)
	assert.Equal(t, GetPrompts().DigestNoActivity, payload.AISummary,
		"empty weeks get the localized fallback narrative")
}

func TestSuggestionFor(t *testing.T) {
	assert.NotEmpty(t, suggestionFor(0, 0))
	assert.NotEmpty(t, suggestionFor(3, 0))
	assert.NotEmpty(t, suggestionFor(3, 2))
	assert.NotEqual(t, suggestionFor(0, 0), suggestionFor(3, 2))
}
