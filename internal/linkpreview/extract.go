package linkpreview

import (
	"strings"

	"golang.org/x/net/html"
)

const (
	maxTitleRunes       = 200
	maxDescriptionRunes = 500
	maxSiteNameRunes    = 100
)

type metadata struct {
	Title       string
	Description string
	Image       string
	SiteName    string
}

// extractMetadata tokenizes the document for <meta> and <title> tags without
// building a DOM. The first non-empty value for each key wins. Scanning stops
// at <body>, where head metadata ends.
func extractMetadata(doc string) metadata {
	z := html.NewTokenizer(strings.NewReader(doc))
	props := make(map[string]string)
	var title string
	inTitle := false

scan:
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			break scan
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "meta":
				if hasAttr {
					readMeta(z, props)
				}
			case "title":
				inTitle = tt == html.StartTagToken
			case "body":
				break scan
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "title" {
				inTitle = false
			}
		case html.TextToken:
			if inTitle && strings.TrimSpace(title) == "" {
				title = string(z.Text())
			}
		}
	}

	return metadata{
		Title:       clean(firstNonEmpty(props["og:title"], title), maxTitleRunes),
		Description: clean(firstNonEmpty(props["og:description"], props["description"]), maxDescriptionRunes),
		Image:       strings.TrimSpace(firstNonEmpty(props["og:image"], props["og:image:url"])),
		SiteName:    clean(props["og:site_name"], maxSiteNameRunes),
	}
}

// readMeta records a meta tag's content under its property (or name) key.
func readMeta(z *html.Tokenizer, props map[string]string) {
	var key, content string
	for {
		attr, val, more := z.TagAttr()
		switch string(attr) {
		case "property":
			key = string(val)
		case "name":
			if key == "" {
				key = string(val)
			}
		case "content":
			content = string(val)
		}
		if !more {
			break
		}
	}
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" || strings.TrimSpace(props[key]) != "" {
		return
	}
	props[key] = content
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// clean collapses whitespace and caps the rune count. Entities are already
// decoded by the tokenizer.
func clean(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > maxRunes {
		return strings.TrimSpace(string(r[:maxRunes]))
	}
	return s
}
