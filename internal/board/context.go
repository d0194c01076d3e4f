package board

import "github.com/gofiber/fiber/v2"

const (
	localBoardID     = "board_id"
	localFingerprint = "fingerprint"
)

// GetBoardID extracts the board ID set by the board middleware.
func GetBoardID(c *fiber.Ctx) string {
	if id, ok := c.Locals(localBoardID).(string); ok {
		return id
	}
	return ""
}

func SetBoardID(c *fiber.Ctx, id string) {
	c.Locals(localBoardID, id)
}

// GetFingerprint extracts the requester fingerprint set by the fingerprint
// middleware.
func GetFingerprint(c *fiber.Ctx) string {
	if fp, ok := c.Locals(localFingerprint).(string); ok {
		return fp
	}
	return ""
}

func SetFingerprint(c *fiber.Ctx, fp string) {
	c.Locals(localFingerprint, fp)
}
