package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/board"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/metrics"
	"github.com/gofiber/fiber/v2"
)

const MaxReasonRunes = 200

// AuthError is a failed admin authentication. Kind is for logs and metrics;
// callers only see Status and Message.
type AuthError struct {
	Status  int
	Kind    string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

var (
	ErrAdminNotConfigured = &AuthError{Status: fiber.StatusServiceUnavailable, Kind: "not_configured", Message: "not configured"}
	ErrInvalidToken       = &AuthError{Status: fiber.StatusForbidden, Kind: "invalid_token", Message: "invalid token"}

	ErrReasonRequired = errors.New("reason is required")
	ErrReasonTooLong  = errors.New("reason exceeds 200 characters")
)

// AdminGuard checks a shared admin token. Only the token's digest is held.
type AdminGuard struct {
	digest     [sha256.Size]byte
	configured bool
}

func NewAdminGuard(token string) *AdminGuard {
	g := &AdminGuard{configured: token != ""}
	if g.configured {
		g.digest = sha256.Sum256([]byte(token))
	}
	return g
}

// Authenticate checks an Authorization header value of the form
// "Bearer <token>". It returns nil when the caller is an admin.
func (g *AdminGuard) Authenticate(header string) *AuthError {
	if !g.configured {
		return ErrAdminNotConfigured
	}
	presented, ok := strings.CutPrefix(strings.TrimSpace(header), "Bearer ")
	if !ok {
		return ErrInvalidToken
	}
	// Comparing digests keeps the comparison fixed-length, so token length
	// is not observable.
	digest := sha256.Sum256([]byte(strings.TrimSpace(presented)))
	if subtle.ConstantTimeCompare(digest[:], g.digest[:]) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// AdminRequired gates admin endpoints on the shared token. It never falls back
// to any other scheme.
func AdminRequired(guard *AdminGuard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			if token := c.Get("X-Admin-Token"); token != "" {
				header = "Bearer " + token
			}
		}

		if authErr := guard.Authenticate(header); authErr != nil {
			metrics.AdminAuthFailures.WithLabelValues(authErr.Kind).Inc()
			slog.Warn("admin authentication failed",
				"reason", authErr.Kind,
				"path", c.Path(),
				"fingerprint", board.GetFingerprint(c),
			)
			return c.Status(authErr.Status).JSON(dto.ErrorResponse{
				Error: true, Code: authErr.Kind, Message: authErr.Message,
			})
		}
		return c.Next()
	}
}

// LegacyAllowlistRequired admits requesters whose fingerprint is on a fixed
// allowlist. Deprecated; only mounted on the read-only legacy group.
func LegacyAllowlistRequired(fingerprints []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fp := board.GetFingerprint(c)
		if fp == "" || !slices.Contains(fingerprints, fp) {
			metrics.AdminAuthFailures.WithLabelValues("legacy_denied").Inc()
			slog.Warn("legacy admin access denied", "path", c.Path(), "fingerprint", fp)
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Code: ErrInvalidToken.Kind, Message: ErrInvalidToken.Message,
			})
		}
		return c.Next()
	}
}

// ValidateReason checks the rationale required for destructive admin
// actions.
func ValidateReason(reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if utf8.RuneCountInString(reason) > MaxReasonRunes {
		return ErrReasonTooLong
	}
	return nil
}
