package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/board"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/classifier"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/models"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/services"
	"github.com/gofiber/fiber/v2"
)

// ClassifierHandler serves the admin classifier config endpoints. Every write
// is recorded in the moderation log.
type ClassifierHandler struct {
	repo       *classifier.Repository
	static     *classifier.StaticSource
	classifier *classifier.Classifier
	moderation *services.ModerationService
}

func NewClassifierHandler(repo *classifier.Repository, static *classifier.StaticSource, c *classifier.Classifier, moderation *services.ModerationService) *ClassifierHandler {
	return &ClassifierHandler{repo: repo, static: static, classifier: c, moderation: moderation}
}

func (h *ClassifierHandler) GetConfig(c *fiber.Ctx) error {
	ctx := c.UserContext()
	cfg, err := h.repo.Load(ctx)
	source := classifier.SourceStore
	if err != nil || cfg.IsEmpty() {
		if err != nil {
			slog.Warn("classifier store unavailable", "error", err)
		}
		if cfg, err = h.static.Load(ctx); err != nil {
			return err
		}
		source = classifier.SourceStatic
	}

	return c.JSON(fiber.Map{
		"source": source,
		"config": cfg,
	})
}

func (h *ClassifierHandler) PutConfig(c *fiber.Ctx) error {
	var cfg classifier.Config
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if err := h.repo.Import(c.UserContext(), &cfg); err != nil {
		return classifierError(c, err)
	}
	h.audit(c, "config", "all", "")
	return c.JSON(fiber.Map{"message": "Classifier config replaced"})
}

func (h *ClassifierHandler) PutCategory(c *fiber.Ctx) error {
	var req dto.CategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	name := c.Params("name")
	cat := classifier.Category{
		Name:     name,
		Weight:   req.Weight,
		Active:   active,
		Terms:    req.Terms,
		Patterns: req.Patterns,
	}
	if err := h.repo.UpsertCategory(c.UserContext(), cat); err != nil {
		return classifierError(c, err)
	}
	h.audit(c, "category", name, "")
	return c.JSON(fiber.Map{"message": "Category saved"})
}

func (h *ClassifierHandler) DeleteCategory(c *fiber.Ctx) error {
	var req dto.DeleteCategoryRequest
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

	name := c.Params("name")
	if err := h.repo.DeleteCategory(c.UserContext(), name); err != nil {
		return classifierError(c, err)
	}
	h.audit(c, "category", name, req.Reason)
	return c.JSON(fiber.Map{"message": "Category deleted"})
}

// Test classifies text against the active ruleset without storing anything.
func (h *ClassifierHandler) Test(c *fiber.Ctx) error {
	var req dto.ClassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	rs := h.classifier.Provider().Ruleset(c.UserContext())
	return c.JSON(fiber.Map{
		"result":     rs.Classify(req.Text, req.BoardID),
		"normalized": rs.Normalize(req.Text),
		"source":     rs.Source(),
	})
}

func (h *ClassifierHandler) audit(c *fiber.Ctx, targetType, targetID, reason string) {
	err := h.moderation.LogAction(c.UserContext(), models.LogActionClassifierUpdate, targetType, targetID, board.GetFingerprint(c), reason)
	if err != nil {
		slog.Error("failed to write moderation log", "action", models.LogActionClassifierUpdate, "error", err)
	}
}

func classifierError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, classifier.ErrInvalidConfig):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Code: "invalid_config", Message: err.Error(),
		})
	case errors.Is(err, classifier.ErrCategoryNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Code: "category_not_found", Message: err.Error(),
		})
	}
	return err
}
