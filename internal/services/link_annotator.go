package services

import (
	"fmt"
	"html"

	"github.com/bucketbridge/bucketbridge/internal/models"
)

// LinkRule turns a matched reference into a URL suffix below the base URL
type LinkRule struct {
	Pattern IssuePattern
	Suffix  string // fmt template receiving the matched id
}

// LinkRules are applied in order; earlier rules win overlapping spans
var LinkRules = []LinkRule{
	{Pattern: LinkPatterns[0], Suffix: "issues/%s"},
	{Pattern: LinkPatterns[1], Suffix: "issues/%s"},
	{Pattern: LinkPatterns[2], Suffix: "pulls/%s"},
	{Pattern: LinkPatterns[3], Suffix: "wiki/%s"},
}

// LinkAnnotator wraps issue, pull request and wiki references in changelog
// text with links into a GitBucket repository
type LinkAnnotator struct {
	rules []LinkRule
}

// NewLinkAnnotator creates an annotator using LinkRules
func NewLinkAnnotator() *LinkAnnotator {
	return &LinkAnnotator{rules: LinkRules}
}

// Annotate adds links to text for every rule match. baseURL must end with "/".
func (a *LinkAnnotator) Annotate(text *MarkupText, baseURL string) {
	for _, rule := range a.rules {
		for _, m := range MatchIssues(text.Text(), []IssuePattern{rule.Pattern}) {
			href := baseURL + fmt.Sprintf(rule.Suffix, m.ID)
			text.AddMarkup(m.Start, m.End, "<a href='"+html.EscapeString(href)+"'>", "</a>")
		}
	}
}

// AnnotateJob annotates text with the job's link configuration. It is a
// no-op when the job has no base URL or linking is disabled.
func (a *LinkAnnotator) AnnotateJob(job *models.Job, text *MarkupText) {
	if job == nil || !job.Link.HasURL() || !job.Link.LinkEnabled {
		return
	}
	a.Annotate(text, job.Link.URL)
}

// AnnotateString is a convenience wrapper returning the rendered markup
func (a *LinkAnnotator) AnnotateString(text, baseURL string) string {
	m := NewMarkupText(text)
	a.Annotate(m, baseURL)
	return m.String()
}
