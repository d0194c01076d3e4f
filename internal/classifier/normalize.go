package classifier

import (
	"log/slog"
	"sort"
	"strings"
	"unicode"
)

// Characters commonly inserted between letters to dodge substring matching.
const separatorChars = "*.-_+=|~`!@#$%^&()"

// maxNormalizePasses bounds the passes in normalize that change the text
// without shortening it. Passes that shorten it always run, since a run like
// "uuuu" under a "uu" -> "u" rule only halves per pass.
const maxNormalizePasses = 8

type replacement struct {
	variant   string
	canonical string
}

// compileHomophones flattens the canonical->variants map into replacements
// ordered longest variant first, so "a$$hole" wins over a shorter overlap.
func compileHomophones(homophones map[string][]string) []replacement {
	var out []replacement
	for canonical, variants := range homophones {
		canonical = strings.ToLower(strings.TrimSpace(canonical))
		if canonical == "" {
			continue
		}
		for _, v := range variants {
			v = strings.ToLower(v)
			if v == "" || v == canonical {
				continue
			}
			if strings.Contains(canonical, v) {
				// Would rewrite the canonical token into a longer string forever.
				slog.Warn("skipping homophone variant contained in its canonical token",
					"canonical", canonical, "variant", v)
				continue
			}
			out = append(out, replacement{variant: v, canonical: canonical})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].variant) != len(out[j].variant) {
			return len(out[i].variant) > len(out[j].variant)
		}
		return out[i].variant < out[j].variant
	})
	return out
}

// normalize lowercases text, rewrites homophone variants to their canonical
// token and strips separator characters, repeating until the text stops
// changing.
func normalize(text string, replacements []replacement) string {
	s := strings.ToLower(text)
	for steady := 0; steady < maxNormalizePasses; {
		next := stripSeparators(replaceVariants(s, replacements))
		if next == s {
			break
		}
		if len(next) >= len(s) {
			steady++
		}
		s = next
	}
	return s
}

func replaceVariants(s string, replacements []replacement) string {
	for _, r := range replacements {
		if strings.Contains(s, r.variant) {
			s = strings.ReplaceAll(s, r.variant, r.canonical)
		}
	}
	return s
}

func stripSeparators(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(separatorChars, r) {
			return -1
		}
		return r
	}, s)
}
