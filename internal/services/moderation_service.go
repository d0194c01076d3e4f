package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/classifier"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/models"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrPostDeleted       = errors.New("post has been deleted")
	ErrPostResolved      = errors.New("post has already been rejected or deleted")
	ErrNotPendingReview  = errors.New("post is not pending review")
	ErrAlreadyReported   = errors.New("post already reported by this reporter")
	ErrInvalidCategory   = errors.New("invalid report category")
	ErrReportTextTooLong = errors.New("report text exceeds 500 characters")
	ErrFlagConflict      = errors.New("post changed concurrently, flag not applied")
)

const (
	DefaultScanBatch = 100
	MaxScanBatch     = 500

	// UserReportScore is the score a reader report contributes to a post.
	UserReportScore = 0.5

	maxReportTextRunes = 500
	maxFlagAttempts    = 5
)

// Classifier is what the workflow needs from the content classifier.
type Classifier interface {
	Classify(ctx context.Context, text, boardID string) classifier.Result
}

type ScanResult struct {
	Scanned int `json:"scanned"`
	Flagged int `json:"flagged"`
	Clean   int `json:"clean"`
	Errors  int `json:"errors"`
}

type QueueItem struct {
	models.Post
	ReportCount int64 `json:"report_count"`
}

type ModerationStats struct {
	Unscanned     int64 `json:"unscanned"`
	Clean         int64 `json:"clean"`
	PendingReview int64 `json:"pending_review"`
	Approved      int64 `json:"approved"`
	Rejected      int64 `json:"rejected"`
	TotalReports  int64 `json:"total_reports"`
	ReportsToday  int64 `json:"reports_today"`
}

// ModerationService owns moderation state on posts and all report and audit
// log rows.
type ModerationService struct {
	db         *gorm.DB
	classifier Classifier
	now        func() time.Time
}

func NewModerationService(db *gorm.DB, c Classifier) *ModerationService {
	return &ModerationService{db: db, classifier: c, now: time.Now}
}

// ScanUnscanned classifies up to limit unscanned visible posts, newest first.
// A failure on one post is logged and counted; the rest of the batch still
// runs.
func (s *ModerationService) ScanUnscanned(ctx context.Context, limit int) (*ScanResult, error) {
	if limit <= 0 {
		limit = DefaultScanBatch
	}
	if limit > MaxScanBatch {
		limit = MaxScanBatch
	}

	var posts []models.Post
	if err := s.db.WithContext(ctx).
		Where("moderation_status = ? AND status = ?", models.ModerationUnscanned, models.PostVisible).
		Order("created_at DESC").
		Limit(limit).
		Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to load unscanned posts: %w", err)
	}

	result := &ScanResult{}
	for i := range posts {
		if ctx.Err() != nil {
			break
		}
		post := &posts[i]
		result.Scanned++

		flagged, err := s.scanIsolated(ctx, post)
		switch {
		case err != nil:
			result.Errors++
			metrics.ScanOutcomes.WithLabelValues("error").Inc()
			slog.Error("moderation scan failed", "post_id", post.ID.String(), "board_id", post.BoardID, "error", err)
			sentry.CaptureException(err)
		case flagged:
			result.Flagged++
			metrics.ScanOutcomes.WithLabelValues("flagged").Inc()
		default:
			result.Clean++
			metrics.ScanOutcomes.WithLabelValues("clean").Inc()
		}
	}
	return result, nil
}

func (s *ModerationService) scanIsolated(ctx context.Context, post *models.Post) (flagged bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while scanning post: %v", r)
		}
	}()
	return s.ScanPost(ctx, post)
}

// ScanPost classifies one post with its board's relaxations applied. A clean
// verdict only moves a post that is still unscanned.
func (s *ModerationService) ScanPost(ctx context.Context, post *models.Post) (bool, error) {
	res := s.classifier.Classify(ctx, post.Content, post.BoardID)
	if res.Flagged {
		err := s.FlagPost(ctx, post.ID, res.Score, res.Categories, models.FlaggedBySystemScan)
		if errors.Is(err, ErrPostResolved) {
			return true, nil
		}
		return true, err
	}

	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("id = ? AND moderation_status = ?", post.ID, models.ModerationUnscanned).
		Updates(map[string]interface{}{
			"moderation_status": models.ModerationClean,
			"moderation_score":  0.0,
		}).Error
	if err != nil {
		return false, fmt.Errorf("failed to mark post clean: %w", err)
	}
	return false, nil
}

// FlagPost raises a post's score to at least score, adds categories, and puts
// it in the review queue. The first flag's source and time are kept. Rejected
// or deleted posts are left alone.
func (s *ModerationService) FlagPost(ctx context.Context, id uuid.UUID, score float64, categories []string, source string) error {
	db := s.db.WithContext(ctx)

	for attempt := 0; attempt < maxFlagAttempts; attempt++ {
		var post models.Post
		if err := db.First(&post, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPostNotFound
			}
			return err
		}
		if post.ModerationStatus == models.ModerationRejected || post.Status == models.PostSoftDeleted {
			return ErrPostResolved
		}

		newScore := score
		if post.ModerationScore != nil && *post.ModerationScore > newScore {
			newScore = *post.ModerationScore
		}
		updates := map[string]interface{}{
			"moderation_status":  models.ModerationPendingReview,
			"moderation_score":   newScore,
			"flagged_categories": datatypes.JSONSlice[string](mergeCategories(post.FlaggedCategories, categories)),
			"flag_revision":      post.FlagRevision + 1,
		}
		if post.FlaggedBy == nil {
			updates["flagged_by"] = source
			updates["flagged_at"] = s.now().UTC()
		}

		// Only applies if nobody else flagged the post since we read it.
		result := db.Model(&models.Post{}).
			Where("id = ? AND flag_revision = ?", id, post.FlagRevision).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to flag post: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			slog.Info("post flagged", "post_id", id.String(), "board_id", post.BoardID,
				"score", newScore, "categories", categories, "source", source)
			return nil
		}
	}
	return ErrFlagConflict
}

func mergeCategories(existing, added []string) []string {
	merged := slices.Clone(existing)
	for _, c := range added {
		if !slices.Contains(merged, c) {
			merged = append(merged, c)
		}
	}
	slices.Sort(merged)
	return merged
}

// GetQueue lists posts awaiting review, highest score first.
func (s *ModerationService) GetQueue(ctx context.Context, limit, offset int) ([]QueueItem, int64, error) {
	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&models.Post{}).
		Where("moderation_status = ?", models.ModerationPendingReview).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	items := make([]QueueItem, 0)
	err := db.Model(&models.Post{}).
		Select("posts.*, (SELECT COUNT(*) FROM reports WHERE reports.post_id = posts.id) AS report_count").
		Where("moderation_status = ?", models.ModerationPendingReview).
		Order("moderation_score IS NULL, moderation_score DESC, flagged_at DESC").
		Limit(limit).
		Offset(offset).
		Scan(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load moderation queue: %w", err)
	}
	return items, total, nil
}

func (s *ModerationService) Approve(ctx context.Context, id uuid.UUID, adminFingerprint string) error {
	return s.decide(ctx, id, adminFingerprint, "", models.ModerationApproved, models.LogActionApprove)
}

// Reject removes the post from view. The caller is expected to have
// validated the reason.
func (s *ModerationService) Reject(ctx context.Context, id uuid.UUID, adminFingerprint, reason string) error {
	return s.decide(ctx, id, adminFingerprint, strings.TrimSpace(reason), models.ModerationRejected, models.LogActionReject)
}

func (s *ModerationService) decide(ctx context.Context, id uuid.UUID, adminFingerprint, reason, status, action string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"moderation_status": status}
		if status == models.ModerationRejected {
			updates["status"] = models.PostSoftDeleted
		}
		result := tx.Model(&models.Post{}).
			Where("id = ? AND moderation_status = ?", id, models.ModerationPendingReview).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Post{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrPostNotFound
			}
			return ErrNotPendingReview
		}

		return tx.Create(&models.ModerationLog{
			Action:           action,
			TargetType:       "post",
			TargetID:         id.String(),
			AdminFingerprint: adminFingerprint,
			Reason:           reason,
		}).Error
	})
	if err != nil {
		return err
	}

	metrics.ModerationDecisions.WithLabelValues(action).Inc()
	slog.Info("moderation decision", "action", action, "post_id", id.String(), "fingerprint", adminFingerprint)
	return nil
}

// CreateReport records a reader report and, unless the post is already in
// the queue, flags it with the report's category.
func (s *ModerationService) CreateReport(ctx context.Context, postID uuid.UUID, reporterFingerprint, category, text string) (*models.Report, error) {
	if !slices.Contains(models.ReportCategories, category) {
		return nil, ErrInvalidCategory
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > maxReportTextRunes {
		return nil, ErrReportTextTooLong
	}

	db := s.db.WithContext(ctx)
	var post models.Post
	if err := db.First(&post, "id = ?", postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	if post.Status == models.PostSoftDeleted {
		return nil, ErrPostDeleted
	}

	report := models.Report{
		PostID:              postID,
		ReporterFingerprint: reporterFingerprint,
		Category:            category,
		Text:                text,
	}
	if err := db.Create(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyReported
		}
		return nil, fmt.Errorf("failed to create report: %w", err)
	}
	metrics.ReportsCreated.WithLabelValues(category).Inc()

	if post.ModerationStatus != models.ModerationPendingReview {
		err := s.FlagPost(ctx, postID, UserReportScore, []string{category}, models.FlaggedByUserReport)
		if err != nil && !errors.Is(err, ErrPostResolved) {
			slog.Error("failed to flag reported post", "post_id", postID.String(), "error", err)
		}
	}
	return &report, nil
}

func (s *ModerationService) GetStats(ctx context.Context) (*ModerationStats, error) {
	db := s.db.WithContext(ctx)

	var rows []struct {
		ModerationStatus string
		Count            int64
	}
	if err := db.Model(&models.Post{}).
		Select("moderation_status, COUNT(*) AS count").
		Group("moderation_status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}

	stats := &ModerationStats{}
	for _, r := range rows {
		switch r.ModerationStatus {
		case models.ModerationUnscanned:
			stats.Unscanned = r.Count
		case models.ModerationClean:
			stats.Clean = r.Count
		case models.ModerationPendingReview:
			stats.PendingReview = r.Count
		case models.ModerationApproved:
			stats.Approved = r.Count
		case models.ModerationRejected:
			stats.Rejected = r.Count
		}
	}

	if err := db.Model(&models.Report{}).Count(&stats.TotalReports).Error; err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if err := db.Model(&models.Report{}).Where("created_at >= ?", today).Count(&stats.ReportsToday).Error; err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	return stats, nil
}

func (s *ModerationService) ListLogs(ctx context.Context, limit, offset int) ([]models.ModerationLog, int64, error) {
	var logs []models.ModerationLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.ModerationLog{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

func (s *ModerationService) GetPostReports(ctx context.Context, postID uuid.UUID) ([]models.Report, error) {
	db := s.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.Post{}).Where("id = ?", postID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrPostNotFound
	}

	reports := make([]models.Report, 0)
	if err := db.Where("post_id = ?", postID).Order("created_at DESC").Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

// LogAction appends an audit entry for an admin action outside the post
// workflow, such as a classifier change.
func (s *ModerationService) LogAction(ctx context.Context, action, targetType, targetID, adminFingerprint, reason string) error {
	return s.db.WithContext(ctx).Create(&models.ModerationLog{
		Action:           action,
		TargetType:       targetType,
		TargetID:         targetID,
		AdminFingerprint: adminFingerprint,
		Reason:           reason,
	}).Error
}
