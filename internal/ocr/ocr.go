package ocr

import (
	"context"
	"fmt"
	"strings"
)

// Transcriber defines the interface for turning a terminal screenshot into text
type Transcriber interface {
	// Transcribe reads all text on a screenshot, preserving line breaks
	Transcribe(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close closes the transcriber and releases resources
	Close() error
}

// transcribePrompt is the shared prompt used by all LLM providers
const transcribePrompt = `This image is a screenshot of an IBM 5250 (AS400) green screen terminal session.
Transcribe every character on the screen exactly as displayed.

Rules:
- Keep one output line per screen row, in order from top to bottom.
- Keep words on the same row separated by at least one space.
- Do not correct spelling, expand abbreviations or reformat numbers and dates.
- Leave a row empty if nothing is printed on it.
- Do not add any commentary before or after the transcription.
- Do not use markdown code blocks`

// cleanTranscript removes wrapping the model may add around the screen text
func cleanTranscript(text string) (string, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```text")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	text = strings.Trim(text, "\n")

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty transcription")
	}
	return strings.ReplaceAll(text, "\r\n", "\n"), nil
}
