package loader

import (
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/docloader/internal/document"
	"github.com/PuerkitoBio/goquery"
)

// RefreshDirective is a parsed <meta http-equiv="refresh"> instruction.
type RefreshDirective struct {
	Delay time.Duration
	URL   *url.URL
}

// FindRefresh returns the content of the first refresh meta element in
// document order. Tag and attribute value are matched case-insensitively.
func FindRefresh(doc *document.Document) (content string, found bool, err error) {
	q, err := doc.Query()
	if err != nil {
		return "", false, err
	}

	q.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range s.Nodes[0].Attr {
			if strings.EqualFold(attr.Key, "http-equiv") && strings.EqualFold(attr.Val, "refresh") {
				content, _ = s.Attr("content")
				found = true
				return false
			}
		}
		return true
	})
	return content, found, nil
}

// ParseRefresh parses refresh content against the document address base.
//
// "N" refreshes base after N seconds. "N;url=target" navigates to target,
// resolved against base; an empty target also means base.
func ParseRefresh(content string, base *url.URL) (RefreshDirective, error) {
	if !strings.Contains(content, ";") {
		delay, err := parseDelay(strings.TrimSpace(content))
		if err != nil {
			return RefreshDirective{}, &DirectiveError{Content: content, Err: err}
		}
		return RefreshDirective{Delay: delay, URL: base}, nil
	}

	tokens := strings.FieldsFunc(content, func(r rune) bool {
		return r == ';' || r == ' ' || r == '\t'
	})
	if len(tokens) == 0 {
		return RefreshDirective{}, &DirectiveError{Content: content, Err: errors.New("no delay")}
	}

	delay, err := parseDelay(tokens[0])
	if err != nil {
		return RefreshDirective{}, &DirectiveError{Content: content, Err: err}
	}

	directive := RefreshDirective{Delay: delay, URL: base}
	if len(tokens) < 2 || len(tokens[1]) < 4 || !strings.EqualFold(tokens[1][:4], "url=") {
		return directive, nil
	}

	raw := unquote(tokens[1][4:])
	if raw == "" {
		return directive, nil
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return RefreshDirective{}, &DirectiveError{Content: content, Err: err}
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	directive.URL = ref
	return directive, nil
}

func parseDelay(s string) (time.Duration, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative delay")
	}
	if int64(n) > math.MaxInt64/int64(time.Second) {
		return 0, strconv.ErrRange
	}
	return time.Duration(n) * time.Second, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
