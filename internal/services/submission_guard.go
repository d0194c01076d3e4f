package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/guardstore"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/metrics"
	"github.com/spaolacci/murmur3"
)

const (
	MaxContentRunes    = 10000
	SubmissionInterval = 3 * time.Second
	DuplicateWindow    = 30 * time.Second

	MaxReferences       = 10
	MaxReferenceRepeats = 2
	MinSubstantiveRunes = 2

	InvalidEmbedPlaceholder = "invalid-embed-url"
)

// SubmissionError is a rejection the submitter is told about. The package
// level values below are the only instances, so errors.Is works on them.
type SubmissionError struct {
	Kind    string
	Message string
}

func (e *SubmissionError) Error() string {
	return e.Message
}

// RetryLater reports whether the same content may be accepted if resent later.
func (e *SubmissionError) RetryLater() bool {
	return e == ErrRateLimited || e == ErrDuplicateContent
}

var (
	ErrEmptyContent                = &SubmissionError{Kind: "EMPTY", Message: "content is empty"}
	ErrContentTooLong              = &SubmissionError{Kind: "TOO_LONG", Message: fmt.Sprintf("content exceeds %d characters", MaxContentRunes)}
	ErrRateLimited                 = &SubmissionError{Kind: "RATE_LIMITED", Message: "posting too fast, wait a few seconds"}
	ErrDuplicateContent            = &SubmissionError{Kind: "DUPLICATE_CONTENT", Message: "identical content was just posted"}
	ErrInvalidReference            = &SubmissionError{Kind: "INVALID_REFERENCE", Message: "reply references a post that does not exist"}
	ErrExcessiveDuplicateReference = &SubmissionError{Kind: "EXCESSIVE_DUPLICATE_REFERENCE", Message: "the same post is referenced too many times"}
	ErrTooManyReferences           = &SubmissionError{Kind: "TOO_MANY_REFERENCES", Message: fmt.Sprintf("at most %d reply references are allowed", MaxReferences)}
	ErrNoSubstantiveContent        = &SubmissionError{Kind: "NO_SUBSTANTIVE_CONTENT", Message: "reply has no content besides references"}
)

// Submission is one attempt to post. MaxFloor is the highest floor in the
// target thread; reply references are only validated when it is known.
type Submission struct {
	Content     string
	Fingerprint string
	MaxFloor    *int
}

type Verdict struct {
	SanitizedContent string
	ContentHash      string
}

var (
	embedTagRes = []struct {
		tag string
		re  *regexp.Regexp
	}{
		{"video-embed", regexp.MustCompile(`(?is)\[video-embed\](?:(.*?)\[/video-embed\]|(\S*))`)},
		{"image-embed", regexp.MustCompile(`(?is)\[image-embed\](?:(.*?)\[/image-embed\]|(\S*))`)},
	}
	referenceRe = regexp.MustCompile(`>>(\d+)`)
)

// SubmissionGuard decides whether an anonymous submission is accepted. It
// only records state for accepted submissions.
type SubmissionGuard struct {
	store guardstore.Store
	now   func() time.Time
}

func NewSubmissionGuard(store guardstore.Store) *SubmissionGuard {
	return &SubmissionGuard{store: store, now: time.Now}
}

// WithClock replaces the time source.
func (g *SubmissionGuard) WithClock(now func() time.Time) *SubmissionGuard {
	g.now = now
	return g
}

func (g *SubmissionGuard) Evaluate(ctx context.Context, sub Submission) (*Verdict, error) {
	v, err := g.evaluate(ctx, sub)
	var serr *SubmissionError
	switch {
	case err == nil:
		metrics.SubmissionsEvaluated.WithLabelValues("accepted").Inc()
	case errors.As(err, &serr):
		metrics.SubmissionsEvaluated.WithLabelValues(serr.Kind).Inc()
	default:
		metrics.SubmissionsEvaluated.WithLabelValues("error").Inc()
	}
	return v, err
}

func (g *SubmissionGuard) evaluate(ctx context.Context, sub Submission) (*Verdict, error) {
	content := strings.TrimSpace(sub.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return nil, ErrContentTooLong
	}

	now := g.now()
	hash := ContentHash(content)

	st, err := g.store.Recent(ctx, sub.Fingerprint, now.Add(-DuplicateWindow))
	if err != nil {
		// Guard state is best effort; an outage must not stop posting.
		slog.Error("guard store read failed", "fingerprint", sub.Fingerprint, "error", err)
	} else {
		if !st.LastAccepted.IsZero() && now.Sub(st.LastAccepted) < SubmissionInterval {
			return nil, ErrRateLimited
		}
		for _, h := range st.Hashes {
			if h == hash {
				return nil, ErrDuplicateContent
			}
		}
	}

	sanitized := SanitizeEmbeds(content)

	if sub.MaxFloor != nil {
		if err := ValidateReferences(sanitized, *sub.MaxFloor); err != nil {
			return nil, err
		}
	}

	if err := g.store.Record(ctx, sub.Fingerprint, hash, now); err != nil {
		slog.Error("guard store write failed", "fingerprint", sub.Fingerprint, "error", err)
	}
	return &Verdict{SanitizedContent: sanitized, ContentHash: hash}, nil
}

// ContentHash is the dedup key for trimmed content.
func ContentHash(content string) string {
	return fmt.Sprintf("%016x", murmur3.Sum64([]byte(content)))
}

// SanitizeEmbeds replaces the URL inside every embed tag that is not a plain
// https URL with InvalidEmbedPlaceholder.
func SanitizeEmbeds(content string) string {
	for _, e := range embedTagRes {
		openTag, closeTag := "["+e.tag+"]", "[/"+e.tag+"]"
		content = e.re.ReplaceAllStringFunc(content, func(m string) string {
			// An opening tag with no closing tag embeds up to the next
			// whitespace and is stored closed.
			sub := e.re.FindStringSubmatch(m)
			inner := sub[1]
			if !strings.HasSuffix(strings.ToLower(m), closeTag) {
				inner = sub[2]
			}
			if !validEmbedURL(inner) {
				inner = InvalidEmbedPlaceholder
			}
			return openTag + inner + closeTag
		})
	}
	return content
}

func validEmbedURL(raw string) bool {
	if !strings.HasPrefix(raw, "https://") {
		return false
	}
	if strings.ContainsAny(raw, "<>\"'`") || strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}

// ValidateReferences checks the >>N reply references in content against the
// thread's highest floor.
func ValidateReferences(content string, maxFloor int) error {
	matches := referenceRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return nil
	}
	if len(matches) > MaxReferences {
		return ErrTooManyReferences
	}

	counts := make(map[int]int, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > maxFloor {
			return ErrInvalidReference
		}
		counts[n]++
	}
	for _, c := range counts {
		if c > MaxReferenceRepeats {
			return ErrExcessiveDuplicateReference
		}
	}

	rest := strings.TrimSpace(referenceRe.ReplaceAllString(content, ""))
	if utf8.RuneCountInString(rest) < MinSubstantiveRunes {
		return ErrNoSubstantiveContent
	}
	return nil
}
