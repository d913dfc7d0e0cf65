package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"github.com/marginalia-labs/marginalia/internal/models/chat"
	"github.com/marginalia-labs/marginalia/internal/utils"
	"gorm.io/gorm"
)

// extractionTurns bounds how much history the extractor prompt sees.
const extractionTurns = 10

// ExtractedMemory is the structured item the extractor prompt returns.
type ExtractedMemory struct {
	MemoryType      string  `json:"memory_type"`
	Content         string  `json:"content"`
	ImportanceScore float64 `json:"importance_score"`
}

// memoryBuckets maps profile bucket names onto ChatMemory types.
var memoryBuckets = []struct {
	Bucket string
	Type   repository.MemoryType
}{
	{"preferences", repository.MemoryTypePreference},
	{"facts", repository.MemoryTypeFact},
	{"context", repository.MemoryTypeContext},
	{"insights", repository.MemoryTypeInsight},
}

// MemoryService extracts durable memories from completed turns and
// consolidates them into the per-user profile document.
type MemoryService struct {
	llm         *LLMService
	preprocess  *PreprocessService
	messageRepo repository.ChatMessageRepository
	memoryRepo  repository.ChatMemoryRepository
	profileRepo repository.ProfileRepository
}

func NewMemoryService(
	llm *LLMService,
	preprocess *PreprocessService,
	messageRepo repository.ChatMessageRepository,
	memoryRepo repository.ChatMemoryRepository,
	profileRepo repository.ProfileRepository,
) *MemoryService {
	return &MemoryService{
		llm:         llm,
		preprocess:  preprocess,
		messageRepo: messageRepo,
		memoryRepo:  memoryRepo,
		profileRepo: profileRepo,
	}
}

// ExtractFromSession runs the post-turn extractor: the last turns of the
// session go through the extractor prompt and each returned item is
// persisted as a ChatMemory row with importance clamped to [0,1].
func (s *MemoryService) ExtractFromSession(ctx context.Context, sessionID uuid.UUID, userID string) error {
	msgs, err := s.messageRepo.LastN(ctx, sessionID, extractionTurns*2)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	var transcript strings.Builder
	for _, m := range msgs {
		transcript.WriteString(string(m.Role) + ": " + m.Content + "\n")
	}

	schema := utils.GenerateSchema[[]ExtractedMemory]()
	prompt := GetPrompts().MemoryExtractor + "\n" + string(schema)
	resp, err := s.llm.Complete(ctx, []chat.Message{
		{Role: "system", Content: prompt},
		{Role: "user", Content: transcript.String()},
	}, &chat.ChatOptions{Temperature: 0.1, MaxTokens: 800})
	if err != nil {
		return err
	}

	items, err := parseExtractedMemories(resp.Content)
	if err != nil {
		logger.Warnf(ctx, "memory extraction returned unparseable output: %v", err)
		return nil
	}
	for _, item := range items {
		mt := repository.MemoryType(item.MemoryType)
		if !validMemoryType(mt) || strings.TrimSpace(item.Content) == "" {
			continue
		}
		mem := &repository.ChatMemory{
			SessionID:       sessionID,
			UserID:          userID,
			MemoryType:      mt,
			Content:         strings.TrimSpace(item.Content),
			ImportanceScore: clamp01(item.ImportanceScore),
			IsActive:        true,
		}
		if err := s.memoryRepo.Create(ctx, mem); err != nil {
			logger.Warnf(ctx, "persist extracted memory failed: %v", err)
		}
	}
	logger.Infof(ctx, "extracted %d memories from session %s", len(items), sessionID)
	return nil
}

// parseExtractedMemories tolerates the model wrapping its JSON in code fences
// or prose; it extracts the outermost JSON array.
func parseExtractedMemories(content string) ([]ExtractedMemory, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in output")
	}
	var items []ExtractedMemory
	if err := json.Unmarshal([]byte(content[start:end+1]), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func validMemoryType(t repository.MemoryType) bool {
	switch t {
	case repository.MemoryTypePreference, repository.MemoryTypeFact,
		repository.MemoryTypeContext, repository.MemoryTypeInsight:
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ConsolidateOptions selects which buckets to merge and overrides the
// stored strategy when set.
type ConsolidateOptions struct {
	MemoryTypes []string
	Strategy    string
	Force       bool
}

// Consolidate merges the user's active memories into the profile document
// and deactivates the subsumed rows.
func (s *MemoryService) Consolidate(ctx context.Context, userID string, opts ConsolidateOptions) (*repository.MemoryProfile, error) {
	profile, mp, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	settings := mp.ConsolidationSettings
	strategy := settings.ConsolidationStrategy
	if opts.Strategy != "" {
		strategy = opts.Strategy
	}

	wanted := make(map[string]bool)
	for _, t := range opts.MemoryTypes {
		wanted[t] = true
	}

	now := time.Now().UTC()
	for _, bucket := range memoryBuckets {
		if len(wanted) > 0 && !wanted[bucket.Bucket] {
			continue
		}
		rows, err := s.memoryRepo.ActiveByUserAndType(ctx, userID, bucket.Type)
		if err != nil {
			return nil, errors.NewInternalServerError("load memories", err)
		}
		if len(rows) == 0 {
			continue
		}
		entries, mergedIDs := s.mergeBucket(rows, strategy, settings)
		setBucket(mp, bucket.Bucket, entries)
		if err := s.memoryRepo.DeactivateBatch(ctx, mergedIDs); err != nil {
			logger.Warnf(ctx, "deactivate merged memories failed: %v", err)
		}
	}

	mp.LastConsolidated = &now
	raw, err := json.Marshal(mp)
	if err != nil {
		return nil, errors.NewInternalServerError("encode memory profile", err)
	}
	if err := s.profileRepo.UpdateMemoryProfile(ctx, profile.ID, raw); err != nil {
		return nil, errors.NewInternalServerError("persist memory profile", err)
	}
	return mp, nil
}

// mergeBucket applies the configured merge strategy and returns the ordered
// consolidated entries plus the ids of rows now subsumed by the profile.
func (s *MemoryService) mergeBucket(
	rows []*repository.ChatMemory, strategy string, settings repository.ConsolidationSettings,
) ([]repository.ConsolidatedMemoryEntry, []uuid.UUID) {
	maxPerType := settings.MaxMemoriesPerType
	if maxPerType <= 0 {
		maxPerType = 50
	}

	var kept []*repository.ChatMemory
	switch strategy {
	case "importance":
		sort.SliceStable(rows, func(a, b int) bool {
			return rows[a].ImportanceScore > rows[b].ImportanceScore
		})
		kept = rows
	case "time":
		sort.SliceStable(rows, func(a, b int) bool {
			return rows[a].CreatedAt.After(rows[b].CreatedAt)
		})
		kept = rows
	default: // similarity
		kept = mergeBySimilarity(rows, settings.ConsolidationThreshold, s.preprocess)
		sort.SliceStable(kept, func(a, b int) bool {
			return kept[a].ImportanceScore > kept[b].ImportanceScore
		})
	}
	if len(kept) > maxPerType {
		kept = kept[:maxPerType]
	}

	entries := make([]repository.ConsolidatedMemoryEntry, 0, len(kept))
	ids := make([]uuid.UUID, 0, len(rows))
	for _, m := range kept {
		entries = append(entries, repository.ConsolidatedMemoryEntry{
			Content:         m.Content,
			ImportanceScore: m.ImportanceScore,
			SourceCount:     sourceCount(m),
			UpdatedAt:       m.UpdatedAt,
		})
	}
	for _, m := range rows {
		ids = append(ids, m.ID)
	}
	return entries, ids
}

// mergeBySimilarity pairwise-merges rows whose textual similarity exceeds
// the threshold, combining their contents with mergeContents.
func mergeBySimilarity(
	rows []*repository.ChatMemory, threshold float64, preprocess *PreprocessService,
) []*repository.ChatMemory {
	if threshold <= 0 {
		threshold = 0.8
	}
	merged := make([]*repository.ChatMemory, 0, len(rows))
	counts := make(map[uuid.UUID]int)
	for _, row := range rows {
		absorbed := false
		for _, keeper := range merged {
			if textSimilarity(keeper.Content, row.Content, preprocess) > threshold {
				keeper.Content = mergeContents(keeper.Content, row.Content)
				if keeper.ImportanceScore < row.ImportanceScore {
					keeper.ImportanceScore = row.ImportanceScore
				}
				counts[keeper.ID]++
				absorbed = true
				break
			}
		}
		if !absorbed {
			copied := *row
			counts[copied.ID] = 1
			merged = append(merged, &copied)
		}
	}
	for _, m := range merged {
		m.Metadata, _ = json.Marshal(map[string]int{"source_count": counts[m.ID]})
	}
	return merged
}

// textSimilarity is token-set Jaccard similarity, segmenter-aware for CJK.
func textSimilarity(a, b string, preprocess *PreprocessService) float64 {
	ta := preprocess.tokenize(a)
	tb := preprocess.tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		if a == b {
			return 1
		}
		return 0
	}
	setA := make(map[string]struct{}, len(ta))
	for _, w := range ta {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(tb))
	for _, w := range tb {
		setB[w] = struct{}{}
	}
	var inter float64
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := float64(len(setA)+len(setB)) - inter
	if union == 0 {
		return 0
	}
	return inter / union
}

// mergeContents keeps the longer text; when the shorter one is not a substring
// of it, the whole shorter text is appended in full-width parentheses. No
// word-level deduplication is done.
func mergeContents(a, b string) string {
	longer, shorter := a, b
	if len(b) > len(a) {
		longer, shorter = b, a
	}
	if strings.Contains(longer, shorter) {
		return longer
	}
	return longer + "（" + shorter + "）"
}

func sourceCount(m *repository.ChatMemory) int {
	if len(m.Metadata) > 0 {
		var meta map[string]int
		if json.Unmarshal(m.Metadata, &meta) == nil && meta["source_count"] > 0 {
			return meta["source_count"]
		}
	}
	return 1
}

// GetProfile returns the user's memory profile document, initializing an
// empty one with default settings on first access. Readers tolerate missing
// buckets.
func (s *MemoryService) GetProfile(ctx context.Context, userID string) (*repository.MemoryProfile, error) {
	_, mp, err := s.loadProfile(ctx, userID)
	return mp, err
}

// ProfileSummary is the compact per-bucket count view.
type ProfileSummary struct {
	Preferences      int        `json:"preferences"`
	Facts            int        `json:"facts"`
	Context          int        `json:"context"`
	Insights         int        `json:"insights"`
	LastConsolidated *time.Time `json:"last_consolidated,omitempty"`
}

// Summary reports bucket sizes and the last consolidation time.
func (s *MemoryService) Summary(ctx context.Context, userID string) (*ProfileSummary, error) {
	_, mp, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &ProfileSummary{
		Preferences:      len(mp.Preferences),
		Facts:            len(mp.Facts),
		Context:          len(mp.Context),
		Insights:         len(mp.Insights),
		LastConsolidated: mp.LastConsolidated,
	}, nil
}

// UpdateSettings stores the user-editable consolidation knobs.
func (s *MemoryService) UpdateSettings(
	ctx context.Context, userID string, settings repository.ConsolidationSettings,
) (*repository.MemoryProfile, error) {
	switch settings.ConsolidationStrategy {
	case "similarity", "importance", "time":
	default:
		return nil, errors.NewBadRequestError("unknown consolidation strategy")
	}
	if settings.ConsolidationThreshold <= 0 || settings.ConsolidationThreshold > 1 {
		return nil, errors.NewBadRequestError("consolidation threshold must be in (0,1]")
	}
	if settings.MaxMemoriesPerType <= 0 {
		return nil, errors.NewBadRequestError("max memories per type must be positive")
	}
	profile, mp, err := s.loadProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	mp.ConsolidationSettings = settings
	raw, err := json.Marshal(mp)
	if err != nil {
		return nil, errors.NewInternalServerError("encode memory profile", err)
	}
	if err := s.profileRepo.UpdateMemoryProfile(ctx, profile.ID, raw); err != nil {
		return nil, errors.NewInternalServerError("persist memory profile", err)
	}
	return mp, nil
}

// AutoConsolidate runs consolidation only when the user's settings allow it,
// used by the memory-extraction task handler and the auto-consolidate endpoint.
func (s *MemoryService) AutoConsolidate(ctx context.Context, userID string) error {
	_, mp, err := s.loadProfile(ctx, userID)
	if err != nil {
		return err
	}
	if !mp.ConsolidationSettings.AutoConsolidate {
		return nil
	}
	_, err = s.Consolidate(ctx, userID, ConsolidateOptions{})
	return err
}

func (s *MemoryService) loadProfile(ctx context.Context, userID string) (*repository.Profile, *repository.MemoryProfile, error) {
	profile, err := s.profileRepo.GetByID(ctx, userID)
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return nil, nil, errors.NewInternalServerError("load profile", err)
		}
		profile = &repository.Profile{ID: userID}
		if err := s.profileRepo.Upsert(ctx, profile); err != nil {
			return nil, nil, errors.NewInternalServerError("create profile", err)
		}
	}
	mp := &repository.MemoryProfile{Version: 1}
	if len(profile.MemoryProfile) > 0 {
		if err := json.Unmarshal(profile.MemoryProfile, mp); err != nil {
			logger.Warnf(ctx, "memory profile for %s is malformed, resetting: %v", userID, err)
			mp = &repository.MemoryProfile{Version: 1}
		}
	}
	if mp.ConsolidationSettings == (repository.ConsolidationSettings{}) {
		mp.ConsolidationSettings = repository.DefaultConsolidationSettings()
	}
	return profile, mp, nil
}

func setBucket(mp *repository.MemoryProfile, bucket string, entries []repository.ConsolidatedMemoryEntry) {
	switch bucket {
	case "preferences":
		mp.Preferences = entries
	case "facts":
		mp.Facts = entries
	case "context":
		mp.Context = entries
	case "insights":
		mp.Insights = entries
	}
}
