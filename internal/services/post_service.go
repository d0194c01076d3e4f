package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/board"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/linkpreview"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrThreadNotFound = errors.New("thread not found")

// PostService is the glue that runs a submission through the guard, the
// preview fetcher and (optionally) the classifier before storing it.
type PostService struct {
	db           *gorm.DB
	guard        *SubmissionGuard
	previews     linkpreview.PreviewFetcher
	moderation   *ModerationService
	scanOnSubmit bool

	// previewsEnabled reports whether a board wants link previews. Nil
	// means every board does.
	previewsEnabled func(boardID string) bool
}

func NewPostService(db *gorm.DB, guard *SubmissionGuard, previews linkpreview.PreviewFetcher, moderation *ModerationService, scanOnSubmit bool) *PostService {
	return &PostService{
		db:           db,
		guard:        guard,
		previews:     previews,
		moderation:   moderation,
		scanOnSubmit: scanOnSubmit,
	}
}

// SetPreviewPolicy limits link previews to boards for which enabled returns
// true.
func (s *PostService) SetPreviewPolicy(enabled func(boardID string) bool) {
	s.previewsEnabled = enabled
}

// Create stores a new thread (threadID nil) or a reply. Guard rejections are
// returned as *SubmissionError.
func (s *PostService) Create(ctx context.Context, boardID string, threadID *uuid.UUID, content, fingerprint string) (*models.Post, error) {
	sub := Submission{Content: content, Fingerprint: fingerprint}
	floor := 1

	if threadID != nil {
		maxFloor, err := s.threadMaxFloor(ctx, boardID, *threadID)
		if err != nil {
			return nil, err
		}
		sub.MaxFloor = &maxFloor
		floor = maxFloor + 1
	}

	verdict, err := s.guard.Evaluate(ctx, sub)
	if err != nil {
		return nil, err
	}

	post := models.Post{
		BoardID:     boardID,
		Floor:       floor,
		Content:     verdict.SanitizedContent,
		Fingerprint: fingerprint,
	}
	if threadID != nil {
		post.ThreadID = *threadID
	}
	if s.previews != nil && (s.previewsEnabled == nil || s.previewsEnabled(boardID)) {
		if preview := s.previews.FetchPreview(ctx, verdict.SanitizedContent); preview != nil {
			post.LinkPreview = *preview
		}
	}

	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	if s.scanOnSubmit && s.moderation != nil {
		if _, err := s.moderation.scanIsolated(ctx, &post); err != nil {
			// The sweep picks it up later.
			slog.Warn("scan on submit failed", "post_id", post.ID.String(), "error", err)
		} else if err := s.db.WithContext(ctx).First(&post, "id = ?", post.ID).Error; err != nil {
			return nil, err
		}
	}
	return &post, nil
}

func (s *PostService) threadMaxFloor(ctx context.Context, boardID string, threadID uuid.UUID) (int, error) {
	db := s.db.WithContext(ctx)

	var opener models.Post
	err := db.Scopes(board.ForBoard(boardID)).
		Where("id = ? AND thread_id = id AND status = ?", threadID, models.PostVisible).
		First(&opener).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrThreadNotFound
	}
	if err != nil {
		return 0, err
	}
	return s.MaxFloor(ctx, threadID)
}

// MaxFloor is the highest floor in a thread, counting deleted replies so
// floors are never reused.
func (s *PostService) MaxFloor(ctx context.Context, threadID uuid.UUID) (int, error) {
	var maxFloor int
	err := s.db.WithContext(ctx).Model(&models.Post{}).
		Where("thread_id = ?", threadID).
		Select("COALESCE(MAX(floor), 0)").
		Scan(&maxFloor).Error
	return maxFloor, err
}

// Get returns a visible post.
func (s *PostService) Get(ctx context.Context, id uuid.UUID) (*models.Post, error) {
	var post models.Post
	if err := s.db.WithContext(ctx).First(&post, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	if post.Status == models.PostSoftDeleted {
		return nil, ErrPostDeleted
	}
	return &post, nil
}

// ListThread returns the visible posts of a thread in floor order.
func (s *PostService) ListThread(ctx context.Context, boardID string, threadID uuid.UUID) ([]models.Post, error) {
	posts := make([]models.Post, 0)
	err := s.db.WithContext(ctx).Scopes(board.ForBoard(boardID)).
		Where("thread_id = ? AND status = ?", threadID, models.PostVisible).
		Order("floor ASC").
		Find(&posts).Error
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, ErrThreadNotFound
	}
	return posts, nil
}
