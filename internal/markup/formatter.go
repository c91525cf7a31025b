// Package markup renders raw message text into the sanitized display dialect
// understood by the platform renderer: an HTML-like subset plus a set of
// prefix shortcuts ("strong:", "embed:info:", "img:", ...) that expand into
// tags. Formatting never fails; unrecognized input passes through as
// sanitized plain text.
package markup

import (
	"html"
	"sort"
	"strings"
)

// DefaultMaxLength is the character budget applied when the caller does not
// supply one. Truncation is a hard rune cut, not word-aware.
const DefaultMaxLength = 2000

// LineBreak is the line-break marker in rendered markup.
const LineBreak = "<br>"

// EmbedType selects an embed container's CSS class and default icon.
type EmbedType string

// Embed types understood by the "embed[:type]:" prefix and the EmbedBuilder.
const (
	EmbedDefault EmbedType = "default"
	EmbedNote    EmbedType = "note"
	EmbedSuccess EmbedType = "success"
	EmbedInfo    EmbedType = "info"
	EmbedWarn    EmbedType = "warn"
	EmbedError   EmbedType = "error"
	EmbedClean   EmbedType = "clean"
)

type embedStyle struct {
	class string
	icon  string // empty means the type has no icon
}

var embedStyles = map[EmbedType]embedStyle{
	EmbedDefault: {class: "embed-default", icon: "icon-chat"},
	EmbedNote:    {class: "embed-note", icon: "icon-note"},
	EmbedSuccess: {class: "embed-success", icon: "icon-check"},
	EmbedInfo:    {class: "embed-info", icon: "icon-info"},
	EmbedWarn:    {class: "embed-warn", icon: "icon-alert"},
	EmbedError:   {class: "embed-error", icon: "icon-cross"},
	EmbedClean:   {class: "embed-clean"},
}

type embedPrefix struct {
	key string // full prefix including the mandatory trailing colon, lowercase
	typ EmbedType
}

// embedPrefixes is scanned once per message, longest key first, so that
// "embed:info:" can never be consumed by the shorter "embed:" rule.
// Matching is case-insensitive.
var embedPrefixes = func() []embedPrefix {
	ps := []embedPrefix{
		{"embed:", EmbedDefault},
		{"embed:note:", EmbedNote},
		{"embed:success:", EmbedSuccess},
		{"embed:info:", EmbedInfo},
		{"embed:warn:", EmbedWarn},
		{"embed:error:", EmbedError},
		{"embed:clean:", EmbedClean},
	}
	sort.SliceStable(ps, func(i, j int) bool { return len(ps[i].key) > len(ps[j].key) })
	return ps
}()

// inlineShortcuts is scanned in order; the first matching key wins.
// Matching is case-sensitive, unlike the embed table.
var inlineShortcuts = []struct {
	key         string
	open, close string
}{
	{"strong:", "<strong>", "</strong>"},
	{"italic:", "<em>", "</em>"},
	{"strike:", "<s>", "</s>"},
	{"underline:", "<u>", "</u>"},
	{"code:", "<code>", "</code>"},
	{"codeblock:", "<pre><code>", "</code></pre>"},
	{"spoiler:", `<span class="spoiler">`, "</span>"},
	{"quote:", "<blockquote>", "</blockquote>"},
	{"h1:", "<h1>", "</h1>"},
	{"h2:", "<h2>", "</h2>"},
	{"h3:", "<h3>", "</h3>"},
	{"ul:", "<ul><li>", "</li></ul>"},
}

// attachmentShortcuts turn a whole message into a single media tag.
// Ordered longest first so "imgspoiler:" is not consumed by "img:".
var attachmentShortcuts = []struct {
	key     string
	render  func(url string) string
}{
	{"imgspoiler:", func(u string) string { return `<img class="spoiler" src="` + html.EscapeString(u) + `">` }},
	{"img:", func(u string) string { return `<img src="` + html.EscapeString(u) + `">` }},
	{"audio:", func(u string) string { return `<audio src="` + html.EscapeString(u) + `" controls></audio>` }},
	{"video:", func(u string) string { return `<video src="` + html.EscapeString(u) + `" controls></video>` }},
}

// Format renders raw text with the default length budget.
func Format(raw string) string {
	return FormatN(raw, DefaultMaxLength)
}

// FormatN trims, truncates, sanitizes and expands prefix shortcuts in raw.
// The result is display markup; there is no failure mode.
func FormatN(raw string, maxLength int) string {
	if raw == "" {
		return ""
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	s := strings.TrimSpace(raw)
	if r := []rune(s); len(r) > maxLength {
		s = string(r[:maxLength])
	}

	// Literal newlines become markup line breaks before sanitization so the
	// allow-list sees them as tags, not text.
	s = strings.ReplaceAll(s, "\n", LineBreak)
	s = Sanitize(s)
	if s == "" {
		return ""
	}

	if typ, body, ok := matchEmbedPrefix(s); ok {
		lines := strings.Split(body, LineBreak)
		for i, line := range lines {
			lines[i], _ = applyInline(line)
		}
		return renderEmbed(typ, strings.Join(lines, LineBreak))
	}

	lines := strings.Split(s, LineBreak)
	anyInline := false
	for i, line := range lines {
		out, ok := applyInline(line)
		lines[i] = out
		anyInline = anyInline || ok
	}
	s = strings.Join(lines, LineBreak)

	// Attachments are mutually exclusive with the tables above and match
	// against the whole message, never per line.
	if !anyInline {
		if out, ok := applyAttachment(s); ok {
			return out
		}
	}
	return s
}

// matchEmbedPrefix reports the embed type and remaining body when s starts
// with one of the embed keys. The trailing colon is part of the key, so a
// bare "embed" or "embed:info" without content separator never matches.
func matchEmbedPrefix(s string) (EmbedType, string, bool) {
	for _, p := range embedPrefixes {
		if len(s) >= len(p.key) && strings.EqualFold(s[:len(p.key)], p.key) {
			return p.typ, s[len(p.key):], true
		}
	}
	return "", "", false
}

// applyInline wraps line in the tag of the first matching inline shortcut.
func applyInline(line string) (string, bool) {
	for _, sc := range inlineShortcuts {
		if strings.HasPrefix(line, sc.key) {
			return sc.open + line[len(sc.key):] + sc.close, true
		}
	}
	return line, false
}

// applyAttachment converts "img:URL"-style messages into a media tag.
func applyAttachment(s string) (string, bool) {
	for _, sc := range attachmentShortcuts {
		if strings.HasPrefix(s, sc.key) {
			url := strings.TrimSpace(s[len(sc.key):])
			// A multi-line message is not a lone URL.
			if url == "" || strings.Contains(url, LineBreak) {
				return s, false
			}
			return sc.render(url), true
		}
	}
	return s, false
}

// renderEmbed wraps body in the container for the given embed type.
func renderEmbed(t EmbedType, body string) string {
	st, ok := embedStyles[t]
	if !ok {
		st = embedStyles[EmbedDefault]
	}
	var b strings.Builder
	b.WriteString(`<div class="embed ` + st.class + `">`)
	if st.icon != "" {
		b.WriteString(`<i class="icon ` + st.icon + `"></i>`)
	}
	b.WriteString(body)
	b.WriteString(`</div>`)
	return b.String()
}
