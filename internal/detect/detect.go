// Package detect locates certificates inside photographs through an external
// object detection service and crops them out.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Lllllllleong/certificateflow/internal/imaging"
	"github.com/Lllllllleong/certificateflow/internal/pipeline"
)

const (
	DefaultConfidence = 0.25
	MaxDetections     = 2
	CropPadding       = 10
	// inferenceMaxSide bounds the image sent for inference; boxes are scaled back.
	inferenceMaxSide = 640
)

// BoundingBox is one detection in the coordinates of the submitted image.
type BoundingBox struct {
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Class  string  `json:"class,omitempty"`
	Conf   float64 `json:"confidence"`
}

// Client talks to the inference service.
type Client struct {
	inferenceURL string
	confidence   float64
	httpClient   *http.Client
}

var _ pipeline.Detector = (*Client)(nil)

// NewClient targets the service at inferenceURL. Detections below confidence
// are ignored.
func NewClient(inferenceURL string, confidence float64) *Client {
	if confidence <= 0 {
		confidence = DefaultConfidence
	}
	return &Client{
		inferenceURL: strings.TrimRight(inferenceURL, "/"),
		confidence:   confidence,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// DetectAndCrop writes up to MaxDetections padded crops of imagePath into
// outputDir as <stem>_detected_<n>.png and returns their paths.
func (c *Client) DetectAndCrop(ctx context.Context, imagePath, outputDir string) ([]string, error) {
	img, _, err := imaging.Load(imagePath)
	if err != nil {
		return nil, err
	}
	sent := imaging.Fit(img, inferenceMaxSide)

	var buf bytes.Buffer
	if err := png.Encode(&buf, sent); err != nil {
		return nil, fmt.Errorf("encode inference image: %w", err)
	}
	boxes, err := c.Predict(ctx, buf.Bytes(), filepath.Base(imagePath))
	if err != nil {
		return nil, err
	}
	boxes = Select(boxes, c.confidence, MaxDetections)
	if len(boxes) == 0 {
		return nil, nil
	}

	stem := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	scaleX := float64(img.Bounds().Dx()) / float64(sent.Bounds().Dx())
	scaleY := float64(img.Bounds().Dy()) / float64(sent.Bounds().Dy())

	paths := make([]string, 0, len(boxes))
	for i, b := range boxes {
		r := b.Rect(scaleX, scaleY).Add(img.Bounds().Min)
		crop := imaging.Crop(img, r, CropPadding)
		if crop.Bounds().Empty() {
			continue
		}
		out := filepath.Join(outputDir, fmt.Sprintf("%s_detected_%d.png", stem, i+1))
		if err := imaging.SavePNG(out, crop); err != nil {
			return nil, err
		}
		slog.Debug("Cropped certificate saved.", "file", filepath.Base(out), "confidence", b.Conf)
		paths = append(paths, out)
	}
	return paths, nil
}

// Rect converts the box to original image coordinates.
func (b BoundingBox) Rect(scaleX, scaleY float64) image.Rectangle {
	return image.Rect(
		int(math.Round(float64(b.X)*scaleX)),
		int(math.Round(float64(b.Y)*scaleY)),
		int(math.Round(float64(b.X+b.Width)*scaleX)),
		int(math.Round(float64(b.Y+b.Height)*scaleY)),
	)
}

// Select keeps boxes at or above minConf, most confident first, at most limit.
func Select(boxes []BoundingBox, minConf float64, limit int) []BoundingBox {
	kept := make([]BoundingBox, 0, len(boxes))
	for _, b := range boxes {
		if b.Conf >= minConf && b.Width > 0 && b.Height > 0 {
			kept = append(kept, b)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Conf > kept[j].Conf })
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// Predict runs inference on imageData via the external service.
func (c *Client) Predict(ctx context.Context, imageData []byte, filename string) ([]BoundingBox, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, bytes.NewReader(imageData)); err != nil {
		return nil, fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.inferenceURL+"/predict", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Detections []BoundingBox `json:"detections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return result.Detections, nil
}

// CheckHealth verifies the inference service is reachable.
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.inferenceURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("detection service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// Disabled never finds anything, so photographs are kept whole.
type Disabled struct{}

func (Disabled) DetectAndCrop(context.Context, string, string) ([]string, error) {
	return nil, nil
}
