package services

import (
	"regexp"
	"sort"
)

// IssueAction is what a matched reference does to its target
type IssueAction int

const (
	// ActionClose marks a reference that closes an issue (fix, close, resolve)
	ActionClose IssueAction = iota
	// ActionLinkIssue marks a plain issue reference (refs, issue)
	ActionLinkIssue
	// ActionLinkPull marks a pull request reference
	ActionLinkPull
	// ActionLinkWiki marks a wiki page reference
	ActionLinkWiki
)

// IssuePattern pairs a compiled pattern with the action of its matches.
// The pattern's first capture group is the referenced id.
type IssuePattern struct {
	Pattern *regexp.Regexp
	Action  IssueAction
}

// IssueMatch is one reference found in a text.
// Start and End are byte offsets of the whole match.
type IssueMatch struct {
	Action IssueAction
	ID     string
	Start  int
	End    int
}

// ClosingPatterns recognise "fix #N", "fixes #N", "fixed #N" and the close
// and resolve forms
var ClosingPatterns = []IssuePattern{
	{Pattern: regexp.MustCompile(`(?i)fix(?:es|ed)?\s+#?(\d+)`), Action: ActionClose},
	{Pattern: regexp.MustCompile(`(?i)close[sd]?\s+#?(\d+)`), Action: ActionClose},
	{Pattern: regexp.MustCompile(`(?i)resolve[sd]?\s+#?(\d+)`), Action: ActionClose},
}

// LinkPatterns recognise references rendered as links, in rule order
var LinkPatterns = []IssuePattern{
	{Pattern: regexp.MustCompile(`(?i)refs\s+#?(\d+)`), Action: ActionLinkIssue},
	{Pattern: regexp.MustCompile(`(?i)issue\s+#?(\d+)`), Action: ActionLinkIssue},
	{Pattern: regexp.MustCompile(`(?i)pull\s+#?(\d+)`), Action: ActionLinkPull},
	{Pattern: regexp.MustCompile(`(?i)wiki\s+(\w+)`), Action: ActionLinkWiki},
}

// MatchIssues applies every pattern to text and returns all matches ordered
// by position. Matches of one pattern never overlap each other; the same id
// is reported once per pattern instance, without deduplication.
func MatchIssues(text string, patterns []IssuePattern) []IssueMatch {
	var matches []IssueMatch
	for _, p := range patterns {
		for _, loc := range p.Pattern.FindAllStringSubmatchIndex(text, -1) {
			if len(loc) < 4 || loc[2] < 0 {
				continue
			}
			matches = append(matches, IssueMatch{
				Action: p.Action,
				ID:     text[loc[2]:loc[3]],
				Start:  loc[0],
				End:    loc[1],
			})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

// ClosedIssueIDs returns the ids referenced with a closing keyword
func ClosedIssueIDs(text string) []string {
	matches := MatchIssues(text, ClosingPatterns)
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids
}
