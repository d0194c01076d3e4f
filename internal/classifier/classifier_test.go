package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Categories: []Category{
			{Name: "spam", Weight: 0.5, Active: true, Terms: []string{"buy followers"}, Patterns: []string{`(?i)t\.me/\w+`}},
			{Name: "profanity", Weight: 0.3, Active: true, Terms: []string{"shit"}},
			{Name: "nsfw", Weight: 0.6, Active: true, Terms: []string{"porn"}},
			{Name: "disabled", Weight: 1.0, Active: false, Terms: []string{"hello"}},
		},
		Homophones: map[string][]string{
			"shit": {"sh1t", "$hit"},
			"porn": {"p0rn"},
		},
		BoardRelaxations: map[string][]string{
			"adult": {"nsfw"},
		},
	}
}

func TestNormalize(t *testing.T) {
	assert := assert.New(t)
	rs := Compile(testConfig(), SourceStatic)

	assert.Equal("shit", rs.Normalize("S.H.1.T"))
	assert.Equal("shit", rs.Normalize("$hit"))
	assert.Equal("buyfollowers", rs.Normalize("Buy   F-O-L-L-O-W-E-R-S!!"))
	assert.Equal("porn", rs.Normalize("p_0_r_n"))
}

func TestNormalizeIdempotent(t *testing.T) {
	rulesets := []*Ruleset{
		Compile(testConfig(), SourceStatic),
		Compile(mustStaticConfig(t), SourceStatic),
	}
	inputs := []string{
		"",
		"plain text",
		"S.H.1.T happens",
		"sh-1t and a$$hole and f.u.k",
		"P 0 R N",
		"(ﾉ◕ヮ◕)ﾉ*:･ﾟ✧ unicode ÄÖÜ",
		"$$$hit$$$",
		"5-h-i-t b.1.t.c.h",
	}
	for _, rs := range rulesets {
		for _, in := range inputs {
			once := rs.Normalize(in)
			assert.Equal(t, once, rs.Normalize(once), "input %q", in)
		}
	}
}

func TestNormalizeCollapsesLongRuns(t *testing.T) {
	rs := Compile(&Config{
		Homophones: map[string][]string{"u": {"uu"}},
		Categories: []Category{{Name: "profanity", Weight: 1, Active: true, Terms: []string{"fuck"}}},
	}, SourceStatic)

	in := "f" + strings.Repeat("u", 1000) + "ck"
	once := rs.Normalize(in)
	assert.Equal(t, "fuck", once)
	assert.Equal(t, once, rs.Normalize(once))
	assert.Equal(t, []string{"profanity"}, rs.Classify(in, "").Categories)
}

func TestHomophoneContainedInCanonicalSkipped(t *testing.T) {
	rs := Compile(&Config{Homophones: map[string][]string{"nigger": {"nig"}}}, SourceStatic)
	assert.Equal(t, "nigger", rs.Normalize("nigger"))
}

func TestClassifyScoring(t *testing.T) {
	assert := assert.New(t)
	rs := Compile(testConfig(), SourceStatic)

	res := rs.Classify("nothing to see here, hello", "")
	assert.False(res.Flagged)
	assert.Equal(0.0, res.Score)
	assert.Empty(res.Categories)

	res = rs.Classify("sh1t", "")
	assert.True(res.Flagged)
	assert.Equal([]string{"profanity"}, res.Categories)
	assert.InDelta(0.4, res.Score, 1e-9)

	// spam via both a term and a pattern still counts once.
	res = rs.Classify("buy followers at t.me/cheap and p0rn, sh1t", "")
	assert.ElementsMatch([]string{"spam", "profanity", "nsfw"}, res.Categories)
	assert.InDelta(0.9, res.Score, 1e-9)
	assert.Contains(res.MatchedTerms, "buyfollowers")
	assert.Contains(res.MatchedTerms, `/(?i)t\.me/\w+/`)
}

func TestClassifyScoreCapped(t *testing.T) {
	cfg := &Config{Categories: []Category{
		{Name: "a", Weight: 0.9, Active: true, Terms: []string{"alpha"}},
		{Name: "b", Weight: 0.2, Active: true, Terms: []string{"beta"}},
		{Name: "c", Weight: 0.2, Active: true, Terms: []string{"gamma"}},
		{Name: "d", Weight: 0.2, Active: true, Terms: []string{"delta"}},
	}}
	res := Compile(cfg, SourceStatic).Classify("alpha beta gamma delta", "")
	assert.Equal(t, 1.0, res.Score)
	assert.Len(t, res.Categories, 4)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0.0, Score(nil))
	assert.InDelta(t, 0.6, Score([]float64{0.5}), 1e-9)
	assert.InDelta(t, 0.9, Score([]float64{0.3, 0.5, 0.6}), 1e-9)
	assert.InDelta(t, 0.8, Score([]float64{0.1, 0.2, 0.3, 0.4, 0.5}), 1e-9)
}

func TestClassifyBoardRelaxation(t *testing.T) {
	assert := assert.New(t)
	rs := Compile(testConfig(), SourceStatic)

	res := rs.Classify("p0rn", "adult")
	assert.False(res.Flagged)
	assert.Equal(0.0, res.Score)

	res = rs.Classify("p0rn and shit", "adult")
	assert.Equal([]string{"profanity"}, res.Categories)
	assert.InDelta(0.4, res.Score, 1e-9)

	res = rs.Classify("p0rn and shit", "general")
	assert.InDelta(0.8, res.Score, 1e-9)
}

func TestMalformedPatternSkipped(t *testing.T) {
	cfg := &Config{Categories: []Category{
		{Name: "broken", Weight: 0.9, Active: true, Patterns: []string{"(unclosed"}},
		{Name: "ok", Weight: 0.4, Active: true, Patterns: []string{`\bscam\b`}},
	}}
	res := Compile(cfg, SourceStatic).Classify("a scam (unclosed", "")
	assert.Equal(t, []string{"ok"}, res.Categories)
	assert.InDelta(t, 0.5, res.Score, 1e-9)
}

func TestPatternMatchesNormalizedText(t *testing.T) {
	cfg := &Config{Categories: []Category{
		{Name: "scam", Weight: 0.7, Active: true, Patterns: []string{`freecrypto`}},
	}}
	res := Compile(cfg, SourceStatic).Classify("FREE-CRYPTO for all", "")
	assert.True(t, res.Flagged)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig().Validate())

	bad := &Config{Categories: []Category{{Name: "x", Weight: 1.5, Active: true}}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = &Config{Categories: []Category{{Name: "x", Weight: 0.5, Patterns: []string{"("}}}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = &Config{Categories: []Category{{Name: "x", Weight: 0.1}, {Name: "x", Weight: 0.2}}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func TestBundledStaticConfig(t *testing.T) {
	cfg := mustStaticConfig(t)
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.HasActiveCategories())

	res := Compile(cfg, SourceStatic).Classify("send 5 btc to recover your seed phrase", "")
	assert.Contains(t, res.Categories, "scam")
}

func mustStaticConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := MustStaticSource().Load(context.Background())
	require.NoError(t, err)
	return cfg
}

type fakeSource struct {
	cfg   *Config
	err   error
	loads int
}

func (f *fakeSource) Load(context.Context) (*Config, error) {
	f.loads++
	return f.cfg, f.err
}

func TestProviderFallsBackToStatic(t *testing.T) {
	ctx := context.Background()

	down := &fakeSource{err: errors.New("connection refused")}
	p := NewProvider(down, MustStaticSource(), time.Minute)
	assert.Equal(t, SourceStatic, p.Ruleset(ctx).Source())

	empty := &fakeSource{cfg: &Config{}}
	p = NewProvider(empty, MustStaticSource(), time.Minute)
	assert.Equal(t, SourceStatic, p.Ruleset(ctx).Source())

	p = NewProvider(nil, MustStaticSource(), time.Minute)
	assert.Equal(t, SourceStatic, p.Ruleset(ctx).Source())
}

func TestProviderCachesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{cfg: testConfig()}
	p := NewProvider(src, MustStaticSource(), time.Minute)

	assert.Equal(t, SourceStore, p.Ruleset(ctx).Source())
	p.Ruleset(ctx)
	p.Ruleset(ctx)
	assert.Equal(t, 1, src.loads)

	p.Invalidate()
	p.Ruleset(ctx)
	assert.Equal(t, 2, src.loads)
}

func TestProviderTTLExpiry(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{cfg: testConfig()}
	p := NewProvider(src, MustStaticSource(), 20*time.Millisecond)

	p.Ruleset(ctx)
	time.Sleep(60 * time.Millisecond)
	p.Ruleset(ctx)
	assert.Equal(t, 2, src.loads)
}
