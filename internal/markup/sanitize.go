package markup

import "github.com/microcosm-cc/bluemonday"

// policy is the display allow-list applied to every string before any
// shortcut expansion. The platform renderer interprets markup verbatim, so
// anything outside this list must be stripped, never escaped-and-kept.
var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br",
		"strong", "b", "em", "i", "u", "s", "del",
		"code", "pre", "blockquote", "span",
		"h1", "h2", "h3",
		"ul", "ol", "li",
	)
	// Media tags carry a source and minimal playback attributes, nothing else.
	p.AllowAttrs("src").OnElements("img", "audio", "video")
	p.AllowAttrs("controls").OnElements("audio", "video")
	p.AllowStandardURLs()
	return p
}

// Sanitize strips every tag and attribute outside the display allow-list.
func Sanitize(s string) string {
	return policy.Sanitize(s)
}
