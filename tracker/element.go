package tracker

import "strings"

const maxElementTextLen = 100

// Element is the narrow structural view of a DOM node the engine needs.
// Parent returns nil once the document body is reached, so path synthesis
// never includes body itself.
type Element interface {
	TagName() string
	ID() string
	Classes() []string
	Text() string
	// Href returns the element's own link target, or "" if it has none.
	Href() string
	// InputType and Name are only meaningful for form controls.
	InputType() string
	Name() string
	Parent() Element
}

// ElementDescriptor is the serializable shape of a clicked element.
type ElementDescriptor struct {
	Tag     string   `json:"tag"`
	ID      string   `json:"id,omitempty"`
	Classes []string `json:"classes,omitempty"`
	Text    string   `json:"text,omitempty"`
	Href    string   `json:"href,omitempty"`
	Path    string   `json:"path"`
}

// FormElementDescriptor is the reduced shape used for form interactions.
type FormElementDescriptor struct {
	Tag  string `json:"tag"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
	Path string `json:"path"`
}

func describeElement(el Element) ElementDescriptor {
	return ElementDescriptor{
		Tag:     strings.ToLower(el.TagName()),
		ID:      el.ID(),
		Classes: el.Classes(),
		Text:    truncate(strings.TrimSpace(el.Text()), maxElementTextLen),
		Href:    resolveHref(el),
		Path:    elementPath(el),
	}
}

func describeFormElement(el Element) FormElementDescriptor {
	return FormElementDescriptor{
		Tag:  strings.ToLower(el.TagName()),
		Type: el.InputType(),
		Name: el.Name(),
		ID:   el.ID(),
		Path: elementPath(el),
	}
}

// resolveHref returns the element's own link target or that of the nearest
// enclosing link.
func resolveHref(el Element) string {
	for e := el; e != nil; e = e.Parent() {
		if href := e.Href(); href != "" {
			return href
		}
	}
	return ""
}

// elementPath synthesizes a CSS-like selector path from the element up to
// (not including) the document body. An ancestor with an id short-circuits
// the walk since the id alone anchors the path.
func elementPath(el Element) string {
	var segments []string
	for e := el; e != nil; e = e.Parent() {
		if id := e.ID(); id != "" {
			segments = append(segments, "#"+id)
			break
		}
		seg := strings.ToLower(e.TagName())
		if classes := e.Classes(); len(classes) > 0 {
			seg += "." + strings.Join(classes, ".")
		}
		segments = append(segments, seg)
	}
	// Walked leaf-to-root; emit root-to-leaf.
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, " > ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
