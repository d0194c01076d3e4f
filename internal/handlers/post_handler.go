package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/board"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PostHandler struct {
	postService *services.PostService
}

func NewPostHandler(postService *services.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

func (h *PostHandler) Create(c *fiber.Ctx) error {
	var req dto.CreatePostRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	post, err := h.postService.Create(c.UserContext(), board.GetBoardID(c), req.ThreadID, req.Content, board.GetFingerprint(c))
	if err != nil {
		var subErr *services.SubmissionError
		switch {
		case errors.As(err, &subErr):
			status := fiber.StatusBadRequest
			if subErr.RetryLater() {
				status = fiber.StatusTooManyRequests
			}
			return c.Status(status).JSON(dto.ErrorResponse{
				Error: true, Code: subErr.Kind, Message: subErr.Message,
			})
		case errors.Is(err, services.ErrThreadNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Code: "thread_not_found", Message: err.Error(),
			})
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(post)
}

func (h *PostHandler) GetThread(c *fiber.Ctx) error {
	threadID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid thread ID",
		})
	}

	posts, err := h.postService.ListThread(c.UserContext(), board.GetBoardID(c), threadID)
	if err != nil {
		if errors.Is(err, services.ErrThreadNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Code: "thread_not_found", Message: err.Error(),
			})
		}
		return err
	}

	return c.JSON(fiber.Map{
		"thread_id": threadID,
		"posts":     posts,
	})
}
