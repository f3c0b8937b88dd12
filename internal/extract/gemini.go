package extract

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

const transcriptionPrompt = "You are an OCR engine for Brazilian payment receipts (Pix, TED, boleto).\n\n" +
	"Task:\n" +
	"- Transcribe ALL text visible in the attached image, top to bottom.\n" +
	"- Keep numbers, punctuation and currency symbols exactly as printed (e.g. \"R$ 1.500,00\", \"33.206.513/0001-02\").\n" +
	"- Do NOT summarize, translate, correct or interpret anything.\n" +
	"- Output plain text only. No Markdown, no code fences, no commentary.\n" +
	"- If the image contains no text, output nothing.\n"

// GeminiOCR transcribes receipt images with a Gemini model. It is an
// alternative to Vision for deployments that only have Gemini access.
type GeminiOCR struct {
	client *genai.Client
	model  string
}

// NewGeminiOCR creates a GenAI client. With an empty apiKey the backend is
// chosen from the environment (GOOGLE_GENAI_USE_VERTEXAI, GOOGLE_CLOUD_PROJECT,
// GOOGLE_CLOUD_LOCATION).
func NewGeminiOCR(ctx context.Context, apiKey, model string) (*GeminiOCR, error) {
	cfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
		cfg.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiOCR: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiOCR{client: client, model: model}, nil
}

// DetectText sends the image inline with a verbatim-transcription prompt.
func (g *GeminiOCR) DetectText(ctx context.Context, image []byte) (string, error) {
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: transcriptionPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: imageMIMEType(image),
						Data:     image,
					},
				},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GeminiOCR.DetectText: generate content: %w", err)
	}

	return cleanTranscription(resp.Text()), nil
}

func imageMIMEType(data []byte) string {
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		// Let the model sniff formats net/http does not know (HEIC, TIFF).
		return "image/jpeg"
	}
	return mime
}

// cleanTranscription drops Markdown fences the model sometimes adds despite
// the prompt.
func cleanTranscription(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return ""
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
