package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/models/chat"
)

const (
	digestHighlights  = 5
	digestMoreContent = 10
)

// DigestItem is one insight rendered into the digest payload.
type DigestItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Thought     string `json:"thought,omitempty"`
}

// DigestTagSection groups joined article titles under one tag name.
type DigestTagSection struct {
	Name     string `json:"name"`
	Articles string `json:"articles"`
}

// DigestPayload is the parameter object handed to the email template.
type DigestPayload struct {
	User struct {
		Nickname string `json:"nickname"`
		Email    string `json:"email"`
		Timezone string `json:"timezone"`
	} `json:"user"`
	ActivitySummary struct {
		InsightsCount int `json:"insights_count"`
		TaggedCount   int `json:"tagged_count"`
	} `json:"activity_summary"`
	Sections struct {
		Highlights  []DigestItem       `json:"highlights"`
		MoreContent []DigestItem       `json:"more_content"`
		Stacks      []DigestTagSection `json:"stacks,omitempty"`
		Suggestions string             `json:"suggestions,omitempty"`
		Tags        []DigestTagSection `json:"tags"`
	} `json:"sections"`
	AISummary string `json:"ai_summary"`
	Metadata  struct {
		GeneratedAt time.Time `json:"generated_at"`
		WeekStart   time.Time `json:"week_start"`
	} `json:"metadata"`
}

// DigestBuilder collects a user's week of insights, groups them by tag and
// generates the narrative summary.
type DigestBuilder struct {
	insightRepo repository.InsightRepository
	contentRepo repository.InsightContentRepository
	tagRepo     repository.TagRepository
	profileRepo repository.ProfileRepository
	llm         *LLMService
}

func NewDigestBuilder(
	insightRepo repository.InsightRepository,
	contentRepo repository.InsightContentRepository,
	tagRepo repository.TagRepository,
	profileRepo repository.ProfileRepository,
	llm *LLMService,
) *DigestBuilder {
	return &DigestBuilder{
		insightRepo: insightRepo,
		contentRepo: contentRepo,
		tagRepo:     tagRepo,
		profileRepo: profileRepo,
		llm:         llm,
	}
}

// Build assembles the payload for one user over the window opening at
// windowStart and closing at the call instant. The window is intentionally
// inclusive of updates so the AI summary and the item sections show the same
// set.
func (b *DigestBuilder) Build(
	ctx context.Context, userID string, windowStart time.Time, timezone string, weekStart time.Time,
) (*DigestPayload, error) {
	insights, err := b.insightRepo.ListCreatedOrUpdatedSince(ctx, userID, windowStart.Unix())
	if err != nil {
		return nil, err
	}

	payload := &DigestPayload{}
	payload.Metadata.GeneratedAt = time.Now().UTC()
	payload.Metadata.WeekStart = weekStart
	payload.User.Timezone = timezone

	if profile, err := b.profileRepo.GetByID(ctx, userID); err == nil {
		payload.User.Nickname = profile.Nickname
		payload.User.Email = profile.Email
	}

	payload.ActivitySummary.InsightsCount = len(insights)

	items := make([]DigestItem, 0, len(insights))
	for _, i := range insights {
		items = append(items, DigestItem{
			ID:          i.ID.String(),
			Title:       i.Title,
			URL:         i.URL,
			Description: i.Description,
			ImageURL:    i.ImageURL,
			Thought:     i.Thought,
		})
	}
	if len(items) > digestHighlights {
		payload.Sections.Highlights = items[:digestHighlights]
		rest := items[digestHighlights:]
		if len(rest) > digestMoreContent {
			rest = rest[:digestMoreContent]
		}
		payload.Sections.MoreContent = rest
	} else {
		payload.Sections.Highlights = items
	}

	b.fillTagSections(ctx, insights, payload)
	payload.Sections.Suggestions = suggestionFor(len(insights), payload.ActivitySummary.TaggedCount)

	payload.AISummary = b.narrative(ctx, insights)
	return payload, nil
}

// fillTagSections joins insight titles per tag.
func (b *DigestBuilder) fillTagSections(
	ctx context.Context, insights []*repository.Insight, payload *DigestPayload,
) {
	if len(insights) == 0 {
		return
	}
	ids := make([]uuid.UUID, 0, len(insights))
	for _, i := range insights {
		ids = append(ids, i.ID)
	}
	tagged, err := b.tagRepo.TagsForInsights(ctx, ids)
	if err != nil {
		logger.Warnf(ctx, "load digest tags failed: %v", err)
		return
	}
	titlesByTag := make(map[string][]string)
	taggedInsights := 0
	for _, i := range insights {
		tags := tagged[i.ID]
		if len(tags) > 0 {
			taggedInsights++
		}
		for _, tag := range tags {
			titlesByTag[tag.Name] = append(titlesByTag[tag.Name], i.Title)
		}
	}
	payload.ActivitySummary.TaggedCount = taggedInsights
	for name, titles := range titlesByTag {
		payload.Sections.Tags = append(payload.Sections.Tags, DigestTagSection{
			Name:     name,
			Articles: strings.Join(titles, "、"),
		})
	}
	payload.Sections.Stacks = payload.Sections.Tags
}

// narrative generates the weekly AI summary over titles and summaries; with
// no activity the localized fallback string fills the slot.
func (b *DigestBuilder) narrative(ctx context.Context, insights []*repository.Insight) string {
	if len(insights) == 0 {
		return GetPrompts().DigestNoActivity
	}
	var sb strings.Builder
	for idx, i := range insights {
		sb.WriteString(fmt.Sprintf("%d. %s\n", idx+1, i.Title))
		if content, err := b.contentRepo.GetByInsightID(ctx, i.ID); err == nil && content.Summary != "" {
			sb.WriteString("   " + content.Summary + "\n")
		}
	}
	resp, err := b.llm.Complete(ctx, []chat.Message{
		{Role: "system", Content: GetPrompts().DigestNarrative},
		{Role: "user", Content: sb.String()},
	}, &chat.ChatOptions{Temperature: 0.7, MaxTokens: 500})
	if err != nil {
		logger.Warnf(ctx, "digest narrative generation failed: %v", err)
		return GetPrompts().DigestNoActivity
	}
	return resp.Content
}

func suggestionFor(insightCount, taggedCount int) string {
	switch {
	case insightCount == 0:
		return "试着保存一篇你这周读到的好文章吧。"
	case taggedCount == 0:
		return "给收藏加上标签，下周回顾会更轻松。"
	default:
		return "继续保持！可以和助手聊聊这周收藏的内容。"
	}
}
