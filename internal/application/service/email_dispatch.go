package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"time"

	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/marginalia-labs/marginalia/internal/config"
	"github.com/marginalia-labs/marginalia/internal/errors"
	"github.com/marginalia-labs/marginalia/internal/logger"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

// dispatchConcurrency bounds the per-user digest fan-out.
const dispatchConcurrency = 16

// DigestDecision explains why one user was or was not sent a digest.
type DigestDecision struct {
	UserID        string `json:"user_id"`
	Decision      bool   `json:"decision"`
	Sent          bool   `json:"sent"`
	SkippedReason string `json:"skipped_reason,omitempty"`
	Error         string `json:"error,omitempty"`
}

// WeekStart computes the Monday 00:00 UTC preceding now.
func WeekStart(now time.Time) time.Time {
	now = now.UTC()
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	monday := now.AddDate(0, 0, -daysSinceMonday)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// ShouldSend evaluates the per-user decision rule: digest enabled, the
// user's local weekday and hour match their preference, and the no-activity
// policy permits an empty week. force bypasses day/hour and the enabled flag
// (suppression is checked separately).
func ShouldSend(prefs *repository.EmailPreferences, nowUTC time.Time, hasInsights, force bool) bool {
	if force {
		return true
	}
	if !prefs.WeeklyDigestEnabled {
		return false
	}
	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := nowUTC.In(loc)
	if int(local.Weekday()) != prefs.PreferredDay || local.Hour() != prefs.PreferredHour {
		return false
	}
	return hasInsights || prefs.NoActivityPolicy != "skip"
}

// EmailDispatchService is the cron-driven digest dispatcher: per-user
// decision, idempotent audit row, template send, webhook-driven suppression.
type EmailDispatchService struct {
	cfg          *config.Config
	builder      *DigestBuilder
	sender       EmailSender
	prefsRepo    repository.EmailPreferencesRepository
	digestRepo   repository.EmailDigestRepository
	tokenRepo    repository.UnsubscribeTokenRepository
	eventRepo    repository.EmailEventRepository
	suppressRepo repository.EmailSuppressionRepository
	insightRepo  repository.InsightRepository
	profileRepo  repository.ProfileRepository
}

func NewEmailDispatchService(
	cfg *config.Config,
	builder *DigestBuilder,
	sender EmailSender,
	prefsRepo repository.EmailPreferencesRepository,
	digestRepo repository.EmailDigestRepository,
	tokenRepo repository.UnsubscribeTokenRepository,
	eventRepo repository.EmailEventRepository,
	suppressRepo repository.EmailSuppressionRepository,
	insightRepo repository.InsightRepository,
	profileRepo repository.ProfileRepository,
) *EmailDispatchService {
	return &EmailDispatchService{
		cfg:          cfg,
		builder:      builder,
		sender:       sender,
		prefsRepo:    prefsRepo,
		digestRepo:   digestRepo,
		tokenRepo:    tokenRepo,
		eventRepo:    eventRepo,
		suppressRepo: suppressRepo,
		insightRepo:  insightRepo,
		profileRepo:  profileRepo,
	}
}

// DispatchAll iterates every user whose weekly digest is enabled and applies
// the decision rule at nowUTC; users with the digest disabled are not listed,
// even when force is set. One user's failure never blocks the others.
func (s *EmailDispatchService) DispatchAll(ctx context.Context, nowUTC time.Time, force bool) ([]DigestDecision, error) {
	prefsList, err := s.prefsRepo.ListEnabled(ctx)
	if err != nil {
		return nil, errors.NewInternalServerError("list digest preferences", err)
	}

	decisions := make([]DigestDecision, len(prefsList))
	sem := semaphore.NewWeighted(dispatchConcurrency)
	for i, prefs := range prefsList {
		if err := sem.Acquire(ctx, 1); err != nil {
			return decisions[:i], err
		}
		go func(i int, prefs *repository.EmailPreferences) {
			defer sem.Release(1)
			decisions[i] = s.DispatchUser(ctx, prefs, nowUTC, force, false, "")
		}(i, prefs)
	}
	// Drain the semaphore so every in-flight send finishes before we report.
	if err := sem.Acquire(ctx, dispatchConcurrency); err != nil {
		return decisions, err
	}
	sem.Release(dispatchConcurrency)
	return decisions, nil
}

// DispatchUser runs the full per-send procedure for one user.
// dryRun builds the payload without touching the audit table or provider.
func (s *EmailDispatchService) DispatchUser(
	ctx context.Context,
	prefs *repository.EmailPreferences,
	nowUTC time.Time,
	force, dryRun bool,
	emailOverride string,
) DigestDecision {
	decision := DigestDecision{UserID: prefs.UserID}
	weekStart := WeekStart(nowUTC)
	windowStart := weekStart

	hasInsights := s.hasInsights(ctx, prefs.UserID, windowStart)
	if !ShouldSend(prefs, nowUTC, hasInsights, force) {
		decision.SkippedReason = "schedule_mismatch"
		return decision
	}
	decision.Decision = true

	email := emailOverride
	var nickname string
	if profile, err := s.profileRepo.GetByID(ctx, prefs.UserID); err == nil {
		nickname = profile.Nickname
		if email == "" {
			email = profile.Email
		}
	}
	if email == "" {
		decision.SkippedReason = "no_email"
		return decision
	}

	// Suppression always wins, even under force.
	if suppressed, err := s.suppressRepo.IsSuppressed(ctx, email); err == nil && suppressed {
		decision.SkippedReason = "suppressed"
		return decision
	}

	if dryRun {
		if _, err := s.builder.Build(ctx, prefs.UserID, windowStart, prefs.Timezone, weekStart); err != nil {
			decision.Error = err.Error()
			return decision
		}
		decision.SkippedReason = "dry_run"
		return decision
	}

	digest, alreadySent, err := s.digestRepo.TryBeginSend(ctx, prefs.UserID, weekStart)
	if err != nil {
		decision.Error = err.Error()
		return decision
	}
	if alreadySent {
		decision.SkippedReason = "already_sent"
		return decision
	}

	payload, err := s.builder.Build(ctx, prefs.UserID, windowStart, prefs.Timezone, weekStart)
	if err != nil {
		_ = s.digestRepo.MarkFailed(ctx, digest.ID, err.Error())
		decision.Error = err.Error()
		return decision
	}
	payload.User.Email = email
	if nickname != "" {
		payload.User.Nickname = nickname
	}

	templateID, _ := strconv.ParseInt(s.cfg.Email.TemplateID, 10, 64)
	messageID, err := s.sender.SendTemplate(ctx, email, nickname, templateID, payload)
	if err != nil {
		_ = s.digestRepo.MarkFailed(ctx, digest.ID, err.Error())
		decision.Error = err.Error()
		return decision
	}

	raw, _ := json.Marshal(payload)
	if err := s.digestRepo.MarkSent(ctx, digest.ID, messageID, raw); err != nil {
		logger.Errorf(ctx, "mark digest sent failed for %s: %v", prefs.UserID, err)
	}
	decision.Sent = true
	return decision
}

func (s *EmailDispatchService) hasInsights(ctx context.Context, userID string, since time.Time) bool {
	insights, err := s.insightRepo.ListCreatedOrUpdatedSince(ctx, userID, since.Unix())
	if err != nil {
		logger.Warnf(ctx, "digest activity probe failed for %s: %v", userID, err)
		return false
	}
	return len(insights) > 0
}

// Preferences returns the user's digest preferences, creating defaults on
// first access.
func (s *EmailDispatchService) Preferences(ctx context.Context, userID string) (*repository.EmailPreferences, error) {
	prefs, err := s.prefsRepo.GetByUser(ctx, userID)
	if err == nil {
		return prefs, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, errors.NewInternalServerError("load email preferences", err)
	}
	prefs = &repository.EmailPreferences{
		UserID:              userID,
		WeeklyDigestEnabled: true,
		PreferredDay:        0,
		PreferredHour:       9,
		Timezone:            "UTC",
		NoActivityPolicy:    "skip",
	}
	if err := s.prefsRepo.Upsert(ctx, prefs); err != nil {
		return nil, errors.NewInternalServerError("create email preferences", err)
	}
	return prefs, nil
}

// UpdatePreferences validates and stores the user's digest settings.
func (s *EmailDispatchService) UpdatePreferences(
	ctx context.Context, userID string, prefs *repository.EmailPreferences,
) (*repository.EmailPreferences, error) {
	if prefs.PreferredDay < 0 || prefs.PreferredDay > 6 {
		return nil, errors.NewBadRequestError("preferred_day must be in [0,6]")
	}
	if prefs.PreferredHour < 0 || prefs.PreferredHour > 23 {
		return nil, errors.NewBadRequestError("preferred_hour must be in [0,23]")
	}
	switch prefs.NoActivityPolicy {
	case "skip", "brief", "suggestions":
	default:
		return nil, errors.NewBadRequestError("unknown no_activity_policy")
	}
	if _, err := time.LoadLocation(prefs.Timezone); err != nil {
		return nil, errors.NewBadRequestError("unknown timezone")
	}
	prefs.UserID = userID
	if err := s.prefsRepo.Upsert(ctx, prefs); err != nil {
		return nil, errors.NewInternalServerError("save email preferences", err)
	}
	return prefs, nil
}

// UnsubscribeToken returns the stable token linked from digest email bodies.
func (s *EmailDispatchService) UnsubscribeToken(ctx context.Context, userID string) (string, error) {
	return s.tokenRepo.GetOrCreate(ctx, userID, func() string {
		buf := make([]byte, 24)
		if _, err := rand.Read(buf); err != nil {
			return ""
		}
		return hex.EncodeToString(buf)
	})
}

// Unsubscribe flips the weekly digest off for the token's user and records a
// suppression.
func (s *EmailDispatchService) Unsubscribe(ctx context.Context, token string) error {
	userID, err := s.tokenRepo.ResolveUser(ctx, token)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.NewNotFoundError("unknown unsubscribe token")
		}
		return errors.NewInternalServerError("resolve unsubscribe token", err)
	}
	if err := s.prefsRepo.Disable(ctx, userID); err != nil {
		return errors.NewInternalServerError("disable digest", err)
	}
	email := ""
	if profile, perr := s.profileRepo.GetByID(ctx, userID); perr == nil {
		email = profile.Email
	}
	if email != "" {
		if err := s.suppressRepo.Add(ctx, &repository.EmailSuppression{
			Email:  email,
			UserID: userID,
			Reason: "unsubscribed",
		}); err != nil {
			logger.Warnf(ctx, "record unsubscribe suppression failed: %v", err)
		}
	}
	return nil
}

// WebhookEvent is the subset of the Brevo webhook body the dispatcher acts on.
type WebhookEvent struct {
	Event string `json:"event"`
	Email string `json:"email"`
}

// suppressingEvents are the webhook kinds that create a suppression row.
var suppressingEvents = map[string]string{
	"hard_bounce": "bounced",
	"soft_bounce": "bounced",
	"blocked":     "bounced",
	"spam":        "complaint",
	"complaint":   "complaint",
	"unsubscribed": "unsubscribed",
}

// HandleWebhook ingests one provider callback into email_events and derives
// suppressions from bounce/complaint/unsubscribe events.
func (s *EmailDispatchService) HandleWebhook(ctx context.Context, event WebhookEvent, rawPayload []byte) error {
	if event.Email == "" || event.Event == "" {
		return errors.NewBadRequestError("webhook event is missing email or event")
	}
	if err := s.eventRepo.Create(ctx, &repository.EmailEvent{
		Email:     event.Email,
		EventType: event.Event,
		Payload:   rawPayload,
	}); err != nil {
		return errors.NewInternalServerError("record email event", err)
	}
	if reason, ok := suppressingEvents[event.Event]; ok {
		if err := s.suppressRepo.Add(ctx, &repository.EmailSuppression{
			Email:  event.Email,
			Reason: reason,
		}); err != nil {
			return errors.NewInternalServerError("record suppression", err)
		}
	}
	return nil
}
