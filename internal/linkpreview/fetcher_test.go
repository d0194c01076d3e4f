package linkpreview

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/anonboard/internal/cachestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!doctype html>
<html><head>
<title>Fallback title</title>
<meta property="og:title" content="Tom &amp; Jerry">
<meta name="description" content="A cat and a mouse.">
<meta property="og:site_name" content='Cartoons'>
<meta property="og:image" content="/img/cover.png">
</head><body>hi</body></html>`

// fakeResolver maps names to addresses; anything unknown resolves to a
// public address.
type fakeResolver map[string][]netip.Addr

func (r fakeResolver) LookupNetIP(_ context.Context, _, host string) ([]netip.Addr, error) {
	if addrs, ok := r[host]; ok {
		return addrs, nil
	}
	return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
}

type testSite struct {
	srv      *httptest.Server
	dials    atomic.Int32
	requests atomic.Int32
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	})
	// /hops/N redirects N more times before serving the page.
	mux.HandleFunc("/hops/", func(w http.ResponseWriter, r *http.Request) {
		n, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/hops/"))
		if n <= 0 {
			http.Redirect(w, r, "/page", http.StatusFound)
			return
		}
		http.Redirect(w, r, "/hops/"+strconv.Itoa(n-1), http.StatusFound)
	})
	mux.HandleFunc("/to-metadata", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://169.254.169.254/latest/meta-data/", http.StatusFound)
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"title":"nope"}`)
	})
	mux.HandleFunc("/xhtml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xhtml+xml")
		fmt.Fprint(w, `<html><head><title>XHTML page</title></head></html>`)
	})
	mux.HandleFunc("/big", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<title>Big</title>"+strings.Repeat("a", DefaultMaxBytes))
	})
	mux.HandleFunc("/big-chunked", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<title>Big</title>")
		w.(http.Flusher).Flush()
		fmt.Fprint(w, strings.Repeat("a", DefaultMaxBytes))
	})
	mux.HandleFunc("/untitled", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><meta name="description" content="x"></head></html>`)
	})
	mux.HandleFunc("/internal-image", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<title>Has image</title><meta property="og:image" content="http://cdn.internal-net.test/x.png">`)
	})
	mux.HandleFunc("/long", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<title>%s</title><meta property="og:description" content="%s">`,
			strings.Repeat("é", 300), strings.Repeat("d", 600))
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})

	site := &testSite{}
	site.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(site.srv.Close)
	return site
}

// fetcher routes every connection to the test server regardless of the
// validated host, so hostnames stay public as far as validation is concerned.
func (s *testSite) fetcher(opts Options) *Fetcher {
	addr := s.srv.Listener.Addr().String()
	var d net.Dialer
	return NewFetcher(opts,
		WithResolver(fakeResolver{
			"metadata-alias.test":   {netip.MustParseAddr("169.254.169.254")},
			"cdn.internal-net.test": {netip.MustParseAddr("10.1.2.3")},
			"mapped.test":           {netip.MustParseAddr("::ffff:127.0.0.1")},
		}),
		WithDialContext(func(ctx context.Context, network, _ string) (net.Conn, error) {
			s.dials.Add(1)
			return d.DialContext(ctx, network, addr)
		}),
	)
}

func TestFetchPreview(t *testing.T) {
	assert := assert.New(t)
	site := newTestSite(t)
	f := site.fetcher(Options{})

	p := f.FetchPreview(context.Background(), "look at this: http://site.test/page.")
	require.NotNil(t, p)
	assert.Equal("http://site.test/page", p.URL)
	assert.Equal("Tom & Jerry", p.Title)
	assert.Equal("A cat and a mouse.", p.Description)
	assert.Equal("Cartoons", p.SiteName)
	assert.Equal("http://site.test/img/cover.png", p.Image)
}

func TestFetchPreviewNoURL(t *testing.T) {
	site := newTestSite(t)
	f := site.fetcher(Options{})
	assert.Nil(t, f.FetchPreview(context.Background(), "no links here, ftp://site.test/page either"))
	assert.Zero(t, site.dials.Load())
}

func TestFetchPreviewMetadataAddress(t *testing.T) {
	site := newTestSite(t)
	f := site.fetcher(Options{})
	ctx := context.Background()

	assert.Nil(t, f.FetchPreview(ctx, "http://169.254.169.254/latest/meta-data/"))
	assert.Nil(t, f.FetchPreview(ctx, "http://metadata-alias.test/latest/meta-data/"))
	assert.Nil(t, f.FetchPreview(ctx, "http://metadata.google.internal/computeMetadata/v1/"))
	assert.Nil(t, f.FetchPreview(ctx, "http://mapped.test/"))
	assert.Zero(t, site.dials.Load())
}

func TestFetchPreviewSkipDomains(t *testing.T) {
	site := newTestSite(t)
	f := site.fetcher(Options{SkipDomains: []string{"facebook.com"}})
	assert.Nil(t, f.FetchPreview(context.Background(), "https://m.facebook.com/some/post"))
	assert.Zero(t, site.dials.Load())
}

func TestFetchPreviewRedirects(t *testing.T) {
	site := newTestSite(t)
	f := site.fetcher(Options{})
	ctx := context.Background()

	// /hops/N is N+1 redirects including the final hop to /page.
	p := f.FetchPreview(ctx, "http://site.test/hops/3")
	require.NotNil(t, p, "4 redirects")
	assert.Equal(t, "Tom & Jerry", p.Title)

	assert.NotNil(t, f.FetchPreview(ctx, "http://site.test/hops/4"), "5 redirects")
	assert.Nil(t, f.FetchPreview(ctx, "http://site.test/hops/5"), "6 redirects")
}

func TestFetchPreviewRedirectRevalidated(t *testing.T) {
	site := newTestSite(t)
	f := site.fetcher(Options{})

	assert.Nil(t, f.FetchPreview(context.Background(), "http://site.test/to-metadata"))
	assert.Equal(t, int32(1), site.requests.Load())
}

func TestFetchPreviewResponseConstraints(t *testing.T) {
	site := newTestSite(t)
	f := site.fetcher(Options{})
	ctx := context.Background()

	assert.Nil(t, f.FetchPreview(ctx, "http://site.test/json"))
	assert.Nil(t, f.FetchPreview(ctx, "http://site.test/big"))
	assert.Nil(t, f.FetchPreview(ctx, "http://site.test/big-chunked"))
	assert.Nil(t, f.FetchPreview(ctx, "http://site.test/untitled"))
	assert.Nil(t, f.FetchPreview(ctx, "http://site.test/gone"))

	p := f.FetchPreview(ctx, "http://site.test/xhtml")
	require.NotNil(t, p)
	assert.Equal(t, "XHTML page", p.Title)
}

func TestFetchPreviewBlockedImageOnlyDropsImage(t *testing.T) {
	site := newTestSite(t)
	f := site.fetcher(Options{})

	p := f.FetchPreview(context.Background(), "http://site.test/internal-image")
	require.NotNil(t, p)
	assert.Equal(t, "Has image", p.Title)
	assert.Empty(t, p.Image)
}

func TestFetchPreviewLengthCaps(t *testing.T) {
	site := newTestSite(t)
	f := site.fetcher(Options{})

	p := f.FetchPreview(context.Background(), "http://site.test/long")
	require.NotNil(t, p)
	assert.Equal(t, 200, len([]rune(p.Title)))
	assert.Equal(t, 500, len([]rune(p.Description)))
}

func TestFetchPreviewTimeout(t *testing.T) {
	site := newTestSite(t)
	f := site.fetcher(Options{Timeout: 100 * time.Millisecond})

	start := time.Now()
	assert.Nil(t, f.FetchPreview(context.Background(), "http://site.test/slow"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestDialControlRejectsBlockedAddress(t *testing.T) {
	assert.ErrorIs(t, dialControl("tcp4", "127.0.0.1:80", nil), ErrBlockedAddress)
	assert.ErrorIs(t, dialControl("tcp6", "[::1]:443", nil), ErrBlockedAddress)
	assert.NoError(t, dialControl("tcp4", "93.184.216.34:443", nil))
}

func TestFirstURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"plain text", ""},
		{"see https://example.com/a?b=c, ok", "https://example.com/a?b=c"},
		{"(https://en.wikipedia.org/wiki/Go_(game))", "https://en.wikipedia.org/wiki/Go_(game)"},
		{"first http://a.example then https://b.example", "http://a.example"},
		{"[image-embed]https://i.example/x.png[/image-embed]", "https://i.example/x.png"},
		{`<a href="https://q.example/">`, "https://q.example/"},
		{"http:// broken then https://ok.example", "https://ok.example"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FirstURL(tc.in), "input %q", tc.in)
	}
}

func TestCachedFetcher(t *testing.T) {
	site := newTestSite(t)
	cf := NewCachedFetcher(site.fetcher(Options{}), cachestore.NewMemCacheStore(100, time.Minute))
	ctx := context.Background()

	first := cf.FetchPreview(ctx, "http://site.test/page")
	require.NotNil(t, first)
	assert.Equal(t, int32(1), site.requests.Load())

	// Same URL spelled differently is served from the cache.
	second := cf.FetchPreview(ctx, "HTTP://SITE.TEST:80/page#top")
	require.NotNil(t, second)
	assert.Equal(t, first.Title, second.Title)
	assert.Equal(t, int32(1), site.requests.Load())

	// Misses are cached too.
	assert.Nil(t, cf.FetchPreview(ctx, "http://site.test/json"))
	assert.Nil(t, cf.FetchPreview(ctx, "http://site.test/json"))
	assert.Equal(t, int32(2), site.requests.Load())
}
