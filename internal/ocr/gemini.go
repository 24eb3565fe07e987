package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultGeminiModel = "gemini-2.5-flash"

	// one 5250 screen is 24x80 characters, well under this
	maxScreenTokens = 4096

	transcribeTimeout = 30 * time.Second
)

// ErrTruncated is returned when the model stops before the whole screen is read
var ErrTruncated = errors.New("transcription truncated")

// Gemini reads terminal screenshots with Google Gemini
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini connects to Gemini with apiKey. An empty modelName selects
// gemini-2.5-flash.
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(maxScreenTokens)

	return &Gemini{client: client, model: model}, nil
}

// Transcribe returns the screen text shown in a screenshot
func (g *Gemini) Transcribe(ctx context.Context, imageData []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	png, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return "", err
	}

	resp, err := g.model.GenerateContent(ctx, genai.ImageData("png", png), genai.Text(transcribePrompt))
	if err != nil {
		return "", fmt.Errorf("transcribing screenshot: %w", err)
	}

	raw, err := screenText(resp)
	if err != nil {
		return "", err
	}
	text, err := cleanTranscript(raw)
	if err != nil {
		return "", fmt.Errorf("parsing transcription: %w", err)
	}
	return text, nil
}

// screenText joins the text parts of the first candidate
func screenText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no response from gemini")
	}
	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonMaxTokens {
		return "", ErrTruncated
	}
	if candidate.Content == nil {
		return "", errors.New("no response from gemini")
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("gemini returned no text")
	}
	return b.String(), nil
}

// Close releases the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
