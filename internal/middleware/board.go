package middleware

import (
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/board"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/dto"
	"github.com/gofiber/fiber/v2"
)

// BoardMiddleware validates the :board route param against the registry.
func BoardMiddleware(registry *board.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		boardID := c.Params("board")
		if boardID == "" || !registry.Exists(boardID) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error:   true,
				Code:    "board_not_found",
				Message: "Unknown board: " + boardID,
			})
		}
		board.SetBoardID(c, boardID)
		return c.Next()
	}
}

// FingerprintMiddleware derives the requester's opaque fingerprint from the
// client IP.
func FingerprintMiddleware(fingerprinter *board.Fingerprinter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		board.SetFingerprint(c, fingerprinter.Fingerprint(c.IP()))
		return c.Next()
	}
}
