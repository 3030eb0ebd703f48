package resolver

import (
	"regexp"
	"strings"
)

// DefaultOwnerLabels are the labels that precede an owner in free text
var DefaultOwnerLabels = []string{"Владелец", "Owner"}

// Rule is one page extraction heuristic. Group is the capture group holding
// the owner value.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Group   int
}

// Match returns the trimmed owner captured by the rule
func (r Rule) Match(body string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(body)
	if m == nil || r.Group >= len(m) {
		return "", false
	}
	return strings.TrimSpace(m[r.Group]), true
}

// labelAlternation joins labels into a non-capturing regexp group
func labelAlternation(labels []string) string {
	if len(labels) == 0 {
		labels = DefaultOwnerLabels
	}
	quoted := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			quoted = append(quoted, regexp.QuoteMeta(l))
		}
	}
	return "(?:" + strings.Join(quoted, "|") + ")"
}

// DefaultRules returns the page extraction rules in priority order.
// All rules match case-insensitively.
func DefaultRules(labels []string) []Rule {
	label := labelAlternation(labels)
	return []Rule{
		{Name: "label_tag", Pattern: regexp.MustCompile(`(?i)` + label + `:[\s\n]*<[^>]*>([^<]+)</[^>]*>`), Group: 1},
		{Name: "label_text", Pattern: regexp.MustCompile(`(?i)` + label + `:[\s\n]*([^<\n]+)`), Group: 1},
		{Name: "owner_key", Pattern: regexp.MustCompile(`(?i)owner["']?\s*:\s*["']([^"']+)["']`), Group: 1},
		{Name: "username_key", Pattern: regexp.MustCompile(`(?i)username["']?\s*:\s*["']([^"']+)["']`), Group: 1},
		{Name: "data_username", Pattern: regexp.MustCompile(`(?i)data-username=["']([^"']+)["']`), Group: 1},
		{Name: "owner_class", Pattern: regexp.MustCompile(`(?i)class=["'](?:.*?)owner(?:.*?)["'][^>]*>([^<]+)<`), Group: 1},
		{Name: "page_owner_name", Pattern: regexp.MustCompile(`(?i)tgme_page_owner_name">([^<]+)<`), Group: 1},
	}
}

// messageLabelPattern matches "<label>: value" up to the end of the line
func messageLabelPattern(labels []string) *regexp.Regexp {
	return regexp.MustCompile(labelAlternation(labels) + `:\s*(.*?)(?:\n|$)`)
}
