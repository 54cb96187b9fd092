// Package classify recognizes paper-repository identifiers embedded in
// article links and feed GUIDs. Recognition is pure pattern matching; the
// absence of a match is a valid result, not an error.
package classify

import "regexp"

// All known ArXiv URL shapes. The same document can show up as an /abs/
// link, a /pdf/ link or an OAI GUID, and every shape must resolve to the
// same canonical identifier.
var arxivPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)arxiv\.org/abs/([0-9]{4}\.[0-9]{4,5}v?[0-9]*)`),
	regexp.MustCompile(`(?i)arxiv\.org/abs/([a-z-]+/[0-9]{7}v?[0-9]*)`),
	regexp.MustCompile(`(?i)arxiv\.org/pdf/([0-9]{4}\.[0-9]{4,5}v?[0-9]*)`),
	regexp.MustCompile(`(?i)arxiv\.org/pdf/([a-z-]+/[0-9]{7}v?[0-9]*)`),
	regexp.MustCompile(`(?i)oai:arxiv\.org:([0-9]{4}\.[0-9]{4,5}v?[0-9]*)`),
	regexp.MustCompile(`(?i)oai:arxiv\.org:([a-z-]+/[0-9]{7}v?[0-9]*)`),
}

var versionSuffix = regexp.MustCompile(`v[0-9]+$`)

// ArxivID extracts the canonical ArXiv identifier from a single URL or
// GUID, with any version suffix stripped. Returns "" when the value does
// not reference an ArXiv document.
func ArxivID(s string) string {
	if s == "" {
		return ""
	}
	for _, pattern := range arxivPatterns {
		if m := pattern.FindStringSubmatch(s); m != nil {
			return versionSuffix.ReplaceAllString(m[1], "")
		}
	}
	return ""
}

// Classify resolves the canonical identifier for an article given its link
// and feed-level GUID, preferring the link. The result is immutable after
// ingestion: it decides whether the extraction stage applies at all.
func Classify(link, guid string) string {
	if id := ArxivID(link); id != "" {
		return id
	}
	return ArxivID(guid)
}
