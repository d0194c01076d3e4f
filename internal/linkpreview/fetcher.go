package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/anonboard/internal/models"
	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultMaxBytes = 512 * 1024

	maxRedirects = 5
	userAgent    = "anonboard-linkpreview/1.0"
)

var (
	errTooManyRedirects  = errors.New("too many redirects")
	errMissingLocation   = errors.New("redirect without location")
	errUnsupportedScheme = errors.New("unsupported scheme")
	errUnexpectedStatus  = errors.New("unexpected status")
	errNotHTML           = errors.New("response is not html")
	errTooLarge          = errors.New("response too large")
	errNoTitle           = errors.New("page has no title")
)

// Options configures a Fetcher. Zero values fall back to the defaults.
type Options struct {
	Timeout     time.Duration
	MaxBytes    int64
	SkipDomains []string
	// Rate bounds outbound requests per second across all fetches. Zero
	// means unlimited.
	Rate float64
}

type Option func(*Fetcher)

// WithResolver replaces the DNS resolver used for host validation.
func WithResolver(r Resolver) Option {
	return func(f *Fetcher) {
		f.validator.Resolver = r
	}
}

// WithDialContext replaces the transport dialer. The replacement skips the
// connect-time address check, so it is only meant for tests.
func WithDialContext(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(f *Fetcher) {
		f.transport.DialContext = dial
	}
}

// Fetcher builds link previews without letting user-supplied URLs reach
// internal addresses. Hosts are validated before every request, including
// each redirect hop, and the dialer re-checks the address it actually
// connects to.
type Fetcher struct {
	validator *HostValidator
	transport *http.Transport
	client    *http.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	maxBytes  int64
}

func NewFetcher(opts Options, options ...Option) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}

	limit, burst := rate.Inf, 1
	if opts.Rate > 0 {
		limit = rate.Limit(opts.Rate)
		burst = max(1, int(opts.Rate))
	}

	transport := cleanhttp.DefaultPooledTransport()
	// A proxy would be the only address the dialer ever sees.
	transport.Proxy = nil
	transport.DialContext = (&net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}).DialContext

	f := &Fetcher{
		validator: NewHostValidator(opts.SkipDomains),
		transport: transport,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   opts.Timeout,
		maxBytes:  opts.MaxBytes,
	}
	for _, o := range options {
		o(f)
	}
	f.client = &http.Client{
		Transport: f.transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return f
}

func dialControl(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("unexpected dial address %q: %w", address, err)
	}
	if IsBlockedIP(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	return nil
}

// FetchPreview previews the first http(s) URL in rawText. It returns nil when
// there is no URL or the preview cannot be built safely.
func (f *Fetcher) FetchPreview(ctx context.Context, rawText string) *models.LinkPreview {
	target := FirstURL(rawText)
	if target == "" {
		return nil
	}
	return f.FetchURL(ctx, target)
}

// FetchURL is FetchPreview for an already extracted URL.
func (f *Fetcher) FetchURL(ctx context.Context, target string) *models.LinkPreview {
	start := time.Now()
	preview, err := f.fetch(ctx, target)
	metrics.PreviewFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PreviewFetches.WithLabelValues(outcome(err)).Inc()
		slog.Debug("link preview skipped", "url", target, "error", err)
		return nil
	}
	metrics.PreviewFetches.WithLabelValues("ok").Inc()
	return preview
}

func (f *Fetcher) fetch(ctx context.Context, target string) (*models.LinkPreview, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	current, err := url.Parse(target)
	if err != nil {
		return nil, err
	}

	for hop := 0; ; hop++ {
		if err := f.checkURL(ctx, current); err != nil {
			return nil, err
		}
		resp, err := f.get(ctx, current)
		if err != nil {
			return nil, err
		}
		if !isRedirect(resp.StatusCode) {
			defer resp.Body.Close()
			return f.readPreview(ctx, target, current, resp)
		}

		location := resp.Header.Get("Location")
		discard(resp)
		if hop >= maxRedirects {
			return nil, errTooManyRedirects
		}
		if location == "" {
			return nil, errMissingLocation
		}
		next, err := current.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("bad redirect location %q: %w", location, err)
		}
		current = next
	}
}

func (f *Fetcher) checkURL(ctx context.Context, u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q", errUnsupportedScheme, u.Scheme)
	}
	return f.validator.Validate(ctx, u.Hostname())
}

func (f *Fetcher) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.1")
	return f.client.Do(req)
}

func (f *Fetcher) readPreview(ctx context.Context, target string, page *url.URL, resp *http.Response) (*models.LinkPreview, error) {
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}
	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml") {
		return nil, fmt.Errorf("%w: %q", errNotHTML, ct)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: content-length %d", errTooLarge, resp.ContentLength)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", errTooLarge, f.maxBytes)
	}

	meta := extractMetadata(string(body))
	if meta.Title == "" {
		return nil, errNoTitle
	}
	preview := &models.LinkPreview{
		URL:         target,
		Title:       meta.Title,
		Description: meta.Description,
		SiteName:    meta.SiteName,
	}
	if meta.Image != "" {
		preview.Image = f.resolveImage(ctx, page, meta.Image)
	}
	return preview, nil
}

// resolveImage returns the absolute image URL, or "" when it points somewhere
// a fetch would not be allowed to go.
func (f *Fetcher) resolveImage(ctx context.Context, page *url.URL, raw string) string {
	img, err := page.Parse(raw)
	if err != nil {
		return ""
	}
	if err := f.checkURL(ctx, img); err != nil {
		slog.Debug("link preview image dropped", "image", img.String(), "error", err)
		return ""
	}
	return img.String()
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrBlockedHost), errors.Is(err, ErrBlockedAddress):
		return "blocked"
	case errors.Is(err, errTooManyRedirects):
		return "redirects"
	case errors.Is(err, errTooLarge):
		return "too_large"
	case errors.Is(err, errNotHTML), errors.Is(err, errNoTitle):
		return "not_previewable"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}
	return "error"
}

var urlTokenRe = regexp.MustCompile(`(?i)https?://[^\s<>"'\x60\[\]]+`)

// FirstURL returns the first well-formed http(s) URL in text, or "".
func FirstURL(text string) string {
	for _, tok := range urlTokenRe.FindAllString(text, -1) {
		tok = trimURLToken(tok)
		u, err := url.Parse(tok)
		if err != nil || u.Hostname() == "" {
			continue
		}
		if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
			continue
		}
		return tok
	}
	return ""
}

// trimURLToken drops sentence punctuation that followed a URL in prose.
func trimURLToken(tok string) string {
	for len(tok) > 0 {
		last := tok[len(tok)-1]
		switch {
		case strings.IndexByte(".,;:!?", last) >= 0:
			tok = tok[:len(tok)-1]
		case last == ')' && strings.Count(tok, "(") < strings.Count(tok, ")"):
			tok = tok[:len(tok)-1]
		default:
			return tok
		}
	}
	return tok
}
