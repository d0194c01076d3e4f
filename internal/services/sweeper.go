package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// StartSweeper scans unscanned posts every interval until done is closed.
func StartSweeper(svc *ModerationService, interval time.Duration, batch int, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				result, err := svc.ScanUnscanned(ctx, batch)
				cancel()
				if err != nil {
					slog.Error("moderation sweep failed", "error", err)
					sentry.CaptureException(err)
				} else if result.Scanned > 0 {
					slog.Info("moderation sweep completed",
						"scanned", result.Scanned, "flagged", result.Flagged,
						"clean", result.Clean, "errors", result.Errors)
				}
			case <-done:
				return
			}
		}
	}()
}
