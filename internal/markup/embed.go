package markup

import (
	"html"
	"strings"
)

// EmbedBuilder accumulates embed content through fluent setters and renders
// it with Build. Build is a pure read of the accumulated state: it can be
// called repeatedly and always yields the same markup.
type EmbedBuilder struct {
	typ         EmbedType
	title       string
	description string
	fields      []string // fragments, already rendered, in insertion order
	attachment  string
	authorName  string
	authorIcon  string
	showIcon    bool
	color       string
	icon        string
}

// FieldOption adjusts how a single field fragment renders.
type FieldOption func(*fieldSpec)

type fieldSpec struct {
	inline bool
	color  string
	icon   string
}

// Inline flags a field to render on the same row as its neighbors.
func Inline() FieldOption {
	return func(f *fieldSpec) { f.inline = true }
}

// FieldColor sets a border color on a field fragment.
func FieldColor(hex string) FieldOption {
	return func(f *fieldSpec) { f.color = hex }
}

// FieldIcon sets an icon class on a field fragment.
func FieldIcon(class string) FieldOption {
	return func(f *fieldSpec) { f.icon = class }
}

// NewEmbed creates a builder for the given embed type. The type's icon is
// shown by default; use ShowIcon(false) or an override Icon to change that.
func NewEmbed(t EmbedType) *EmbedBuilder {
	if _, ok := embedStyles[t]; !ok {
		t = EmbedDefault
	}
	return &EmbedBuilder{typ: t, showIcon: true}
}

// SetTitle sets the embed heading.
func (b *EmbedBuilder) SetTitle(title string) *EmbedBuilder {
	b.title = title
	return b
}

// SetDescription sets the embed body text.
func (b *EmbedBuilder) SetDescription(desc string) *EmbedBuilder {
	b.description = desc
	return b
}

// SetAuthor sets the author block shown above the title. iconURL may be empty.
func (b *EmbedBuilder) SetAuthor(name, iconURL string) *EmbedBuilder {
	b.authorName = name
	b.authorIcon = iconURL
	return b
}

// AddField appends a label/value pair to the embed.
func (b *EmbedBuilder) AddField(label, value string, opts ...FieldOption) *EmbedBuilder {
	var spec fieldSpec
	for _, opt := range opts {
		opt(&spec)
	}

	class := "field"
	if spec.inline {
		class += " field-inline"
	}

	var f strings.Builder
	f.WriteString(`<span class="` + class + `"`)
	if spec.color != "" {
		f.WriteString(` style="border-color:` + html.EscapeString(spec.color) + `"`)
	}
	f.WriteString(`>`)
	if spec.icon != "" {
		f.WriteString(`<i class="icon ` + html.EscapeString(spec.icon) + `"></i>`)
	}
	f.WriteString(`<strong>` + html.EscapeString(label) + `:</strong> ` + html.EscapeString(value))
	f.WriteString(`</span>`)

	b.fields = append(b.fields, f.String())
	return b
}

// Code appends a preformatted block. lang is a syntax-highlighting hint for
// the renderer; no highlighting happens here.
func (b *EmbedBuilder) Code(lang, source string) *EmbedBuilder {
	var f strings.Builder
	f.WriteString(`<pre><code`)
	if lang != "" {
		f.WriteString(` class="lang-` + html.EscapeString(lang) + `"`)
	}
	f.WriteString(`>` + html.EscapeString(source) + `</code></pre>`)

	b.fields = append(b.fields, f.String())
	return b
}

// Attach sets the trailing attachment URL, rendered as an image.
func (b *EmbedBuilder) Attach(url string) *EmbedBuilder {
	b.attachment = url
	return b
}

// ShowIcon toggles the container icon.
func (b *EmbedBuilder) ShowIcon(show bool) *EmbedBuilder {
	b.showIcon = show
	return b
}

// Color overrides the container border color.
func (b *EmbedBuilder) Color(hex string) *EmbedBuilder {
	b.color = hex
	return b
}

// Icon overrides the type's default icon class.
func (b *EmbedBuilder) Icon(class string) *EmbedBuilder {
	b.icon = class
	return b
}

// Build renders the accumulated state: author block, title, description,
// fields and attachment in fixed order, line-break separated, with empty
// segments omitted, wrapped in the embed container.
func (b *EmbedBuilder) Build() string {
	st := embedStyles[b.typ]

	var segments []string
	if b.authorName != "" {
		var a strings.Builder
		a.WriteString(`<span class="author">`)
		if b.authorIcon != "" {
			a.WriteString(`<img src="` + html.EscapeString(b.authorIcon) + `">`)
		}
		a.WriteString(html.EscapeString(b.authorName))
		a.WriteString(`</span>`)
		segments = append(segments, a.String())
	}
	if b.title != "" {
		segments = append(segments, `<h2>`+html.EscapeString(b.title)+`</h2>`)
	}
	if b.description != "" {
		segments = append(segments, html.EscapeString(b.description))
	}
	segments = append(segments, b.fields...)
	if b.attachment != "" {
		segments = append(segments, `<img src="`+html.EscapeString(b.attachment)+`">`)
	}

	var out strings.Builder
	out.WriteString(`<div class="embed ` + st.class + `"`)
	if b.color != "" {
		out.WriteString(` style="border-color:` + html.EscapeString(b.color) + `"`)
	}
	out.WriteString(`>`)

	// The icon renders only when requested and actually resolvable, so a
	// disabled or iconless type leaves no stray wrapper element.
	icon := b.icon
	if icon == "" {
		icon = st.icon
	}
	if b.showIcon && icon != "" {
		out.WriteString(`<i class="icon ` + html.EscapeString(icon) + `"></i>`)
	}

	out.WriteString(strings.Join(segments, LineBreak))
	out.WriteString(`</div>`)
	return out.String()
}
