package classifier

import (
	"log/slog"
	"math"
	"regexp"
	"strings"
)

const (
	perCategoryBonus = 0.1
	maxCategoryBonus = 0.3
)

// Result is the verdict for one piece of text.
type Result struct {
	Flagged      bool     `json:"flagged"`
	Score        float64  `json:"score"`
	Categories   []string `json:"categories"`
	MatchedTerms []string `json:"matched_terms"`
}

type compiledCategory struct {
	name     string
	weight   float64
	terms    []string
	patterns []*regexp.Regexp
}

// Ruleset is a compiled, read-only Config. It is safe for concurrent use.
type Ruleset struct {
	source       string
	categories   []compiledCategory
	replacements []replacement
	relaxed      map[string]map[string]bool
}

// Compile turns a Config into a Ruleset. Inactive categories are dropped and
// malformed patterns are logged and skipped so the rest still classify.
func Compile(cfg *Config, source string) *Ruleset {
	rs := &Ruleset{
		source:  source,
		relaxed: make(map[string]map[string]bool),
	}
	if cfg == nil {
		return rs
	}

	rs.replacements = compileHomophones(cfg.Homophones)

	for _, cat := range cfg.Categories {
		if !cat.Active {
			continue
		}
		cc := compiledCategory{name: cat.Name, weight: cat.Weight}
		for _, term := range cat.Terms {
			n := normalize(term, rs.replacements)
			if n == "" {
				continue
			}
			cc.terms = append(cc.terms, n)
		}
		for _, p := range cat.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				slog.Warn("skipping malformed classifier pattern",
					"category", cat.Name, "pattern", p, "error", err)
				continue
			}
			cc.patterns = append(cc.patterns, re)
		}
		rs.categories = append(rs.categories, cc)
	}

	for board, names := range cfg.BoardRelaxations {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		rs.relaxed[board] = set
	}
	return rs
}

// Source names where the ruleset came from ("store" or "static").
func (rs *Ruleset) Source() string {
	return rs.source
}

// Normalize canonicalizes text the same way classification does.
func (rs *Ruleset) Normalize(text string) string {
	return normalize(text, rs.replacements)
}

// Classify scores text against every active category, ignoring categories
// the given board relaxes. boardID may be empty.
func (rs *Ruleset) Classify(text, boardID string) Result {
	res := Result{Categories: []string{}, MatchedTerms: []string{}}
	if strings.TrimSpace(text) == "" {
		return res
	}

	normalized := rs.Normalize(text)
	relaxed := rs.relaxed[boardID]

	var weights []float64
	for _, cat := range rs.categories {
		if relaxed[cat.name] {
			continue
		}
		var hits []string
		for _, term := range cat.terms {
			if strings.Contains(normalized, term) {
				hits = append(hits, term)
			}
		}
		for _, re := range cat.patterns {
			if re.MatchString(text) || re.MatchString(normalized) {
				hits = append(hits, "/"+re.String()+"/")
			}
		}
		if len(hits) == 0 {
			continue
		}
		res.Categories = append(res.Categories, cat.name)
		res.MatchedTerms = append(res.MatchedTerms, hits...)
		weights = append(weights, cat.weight)
	}

	res.Score = Score(weights)
	res.Flagged = len(res.Categories) > 0
	return res
}

// Score combines matched category weights: the strongest weight plus 0.1 per
// matched category (at most 0.3), capped at 1.0.
func Score(weights []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	maxWeight := 0.0
	for _, w := range weights {
		if w > maxWeight {
			maxWeight = w
		}
	}
	bonus := math.Min(perCategoryBonus*float64(len(weights)), maxCategoryBonus)
	score := math.Min(maxWeight+bonus, 1.0)
	return math.Round(score*10000) / 10000
}
