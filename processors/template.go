package processors

import "strings"

// PlaceholderToken marks where the transcription is injected into a
// prompt template.
const PlaceholderToken = "{transcription}"

// RenderTemplate substitutes the first occurrence of the placeholder
// token. A template without the token is sent unmodified.
func RenderTemplate(template, transcription string) string {
	return strings.Replace(template, PlaceholderToken, transcription, 1)
}
