package handlers

import (
	"errors"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/board"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ModerationHandler struct {
	moderationService *services.ModerationService
}

func NewModerationHandler(moderationService *services.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderationService: moderationService}
}

func pagination(c *fiber.Ctx) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func invalidPostID(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error: true, Message: "Invalid post ID",
	})
}

// moderationError maps workflow errors to responses. Unknown errors go to
// the app's error handler.
func moderationError(c *fiber.Ctx, err error) error {
	var status int
	var code string
	switch {
	case errors.Is(err, services.ErrPostNotFound):
		status, code = fiber.StatusNotFound, "post_not_found"
	case errors.Is(err, services.ErrPostDeleted):
		status, code = fiber.StatusGone, "post_deleted"
	case errors.Is(err, services.ErrNotPendingReview):
		status, code = fiber.StatusConflict, "not_pending_review"
	case errors.Is(err, services.ErrAlreadyReported):
		status, code = fiber.StatusConflict, "already_reported"
	case errors.Is(err, services.ErrInvalidCategory):
		status, code = fiber.StatusBadRequest, "invalid_category"
	case errors.Is(err, services.ErrReportTextTooLong):
		status, code = fiber.StatusBadRequest, "text_too_long"
	default:
		return err
	}
	return c.Status(status).JSON(dto.ErrorResponse{
		Error: true, Code: code, Message: err.Error(),
	})
}

// CreateReport is the public report endpoint.
func (h *ModerationHandler) CreateReport(c *fiber.Ctx) error {
	postID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidPostID(c)
	}

	var req dto.CreateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	report, err := h.moderationService.CreateReport(c.UserContext(), postID, board.GetFingerprint(c), req.Category, req.Text)
	if err != nil {
		return moderationError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(report)
}

func (h *ModerationHandler) GetQueue(c *fiber.Ctx) error {
	limit, offset := pagination(c)

	items, total, err := h.moderationService.GetQueue(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"posts":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *ModerationHandler) GetStats(c *fiber.Ctx) error {
	stats, err := h.moderationService.GetStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func (h *ModerationHandler) ListLogs(c *fiber.Ctx) error {
	limit, offset := pagination(c)

	logs, total, err := h.moderationService.ListLogs(c.UserContext(), limit, offset)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"logs":   logs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *ModerationHandler) GetPostReports(c *fiber.Ctx) error {
	postID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidPostID(c)
	}

	reports, err := h.moderationService.GetPostReports(c.UserContext(), postID)
	if err != nil {
		return moderationError(c, err)
	}
	return c.JSON(fiber.Map{"reports": reports})
}

func (h *ModerationHandler) Scan(c *fiber.Ctx) error {
	var req dto.ScanRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid request body",
			})
		}
	}

	result, err := h.moderationService.ScanUnscanned(c.UserContext(), req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (h *ModerationHandler) Approve(c *fiber.Ctx) error {
	postID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidPostID(c)
	}

	if err := h.moderationService.Approve(c.UserContext(), postID, board.GetFingerprint(c)); err != nil {
		return moderationError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post approved"})
}

func (h *ModerationHandler) Reject(c *fiber.Ctx) error {
	postID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return invalidPostID(c)
	}

	var req dto.RejectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if err := middleware.ValidateReason(req.Reason); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Code: "invalid_reason", Message: err.Error(),
		})
	}

	if err := h.moderationService.Reject(c.UserContext(), postID, board.GetFingerprint(c), req.Reason); err != nil {
		return moderationError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Post rejected"})
}
