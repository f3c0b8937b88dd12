package extract

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"
)

const textDetection = "TEXT_DETECTION"

// VisionOCR detects text through the Cloud Vision images:annotate API.
type VisionOCR struct {
	svc *vision.Service
}

// NewVisionOCR creates a Vision client. The client is safe for concurrent use
// and should be shared across requests.
func NewVisionOCR(ctx context.Context, opts ...option.ClientOption) (*VisionOCR, error) {
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewVisionOCR: create vision service: %w", err)
	}
	return &VisionOCR{svc: svc}, nil
}

// DetectText returns the description of the first text annotation, which
// Vision fills with the full-page transcription.
func (v *VisionOCR) DetectText(ctx context.Context, image []byte) (string, error) {
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{
			{
				Image:    &vision.Image{Content: base64.StdEncoding.EncodeToString(image)},
				Features: []*vision.Feature{{Type: textDetection}},
			},
		},
	}

	resp, err := v.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("VisionOCR.DetectText: annotate: %w", err)
	}
	if len(resp.Responses) == 0 {
		return "", nil
	}

	res := resp.Responses[0]
	if res.Error != nil && res.Error.Message != "" {
		return "", fmt.Errorf("VisionOCR.DetectText: %s (code %d)", res.Error.Message, res.Error.Code)
	}
	if len(res.TextAnnotations) == 0 {
		return "", nil
	}

	return res.TextAnnotations[0].Description, nil
}
