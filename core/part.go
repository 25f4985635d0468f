package core

import "encoding/base64"

// Part represents a polymorphic segment of a prompt sent to a completion
// backend. Concrete part types implement the unexported isPart marker enabling
// a closed set.
type Part interface{ isPart() }

// TextPart is a plain text prompt segment.
type TextPart struct {
	Text string // Plain UTF-8 text
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// ImagePart is an inlined image segment (a rasterized page or an uploaded image).
type ImagePart struct {
	MimeType string // e.g. image/png
	Data     []byte // Raw image bytes
}

// isPart implements the Part interface for ImagePart.
func (ImagePart) isPart() {}

// Base64 returns the standard base64 encoding of the image bytes.
func (p ImagePart) Base64() string {
	return base64.StdEncoding.EncodeToString(p.Data)
}

// DataURL returns the image as a data URL (data:<mime>;base64,<payload>).
func (p ImagePart) DataURL() string {
	return "data:" + p.MimeType + ";base64," + p.Base64()
}

// PromptText concatenates all text parts, separated by blank lines.
func PromptText(parts []Part) string {
	var out string
	for _, p := range parts {
		tp, ok := p.(TextPart)
		if !ok || tp.Text == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += tp.Text
	}
	return out
}

// HasImage reports whether any part is an image.
func HasImage(parts []Part) bool {
	for _, p := range parts {
		if _, ok := p.(ImagePart); ok {
			return true
		}
	}
	return false
}
