package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ecosort/ecoscan/pkg/media"
)

const predictPath = "/api/v1/predict"

// Fallback text applied when the server omits a field.
const (
	defaultLabel        = "Unknown Item"
	defaultCategory     = "Uncategorized"
	defaultInstructions = "No sorting instructions available."
	defaultFacts        = "Recycling reduces waste pollution."
	defaultEcoTip       = "Always clean items before recycling."
)

// BoundingBox is one detection in source-pixel coordinates.
type BoundingBox struct {
	Label             string
	ConfidencePercent int
	// Rect is [x1, y1, x2, y2].
	Rect [4]float64
}

// Record is the normalized outcome of analyzing one media item.
type Record struct {
	Label    string
	Category string
	// ConfidencePercent is nil when the server did not report a confidence.
	ConfidencePercent *int
	Instructions      string
	Facts             string
	EcoTip            string
	Boxes             []BoundingBox
}

// AnalysisError is a failed round trip to the inference endpoint: network
// failure, non-2xx status, or a body that isn't valid JSON.
type AnalysisError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AnalysisError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("server error: %d", e.StatusCode)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Client performs one request/response round trip per media item against the
// remote inference endpoint. It never retries: retry policy belongs to the
// caller.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the given base URL, e.g. http://localhost:8000.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Analyze uploads the raw bytes of one item as a multipart form and returns
// the normalized analysis record.
func (c *Client) Analyze(ctx context.Context, item *media.Item) (*Record, error) {
	f, err := os.Open(item.Path)
	if err != nil {
		return nil, &AnalysisError{Message: fmt.Sprintf("could not read %s", item.Name), Err: err}
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, item.Name))
	hdr.Set("Content-Type", item.MIMEType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, &AnalysisError{Message: "could not build upload body", Err: err}
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, &AnalysisError{Message: fmt.Sprintf("could not read %s", item.Name), Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &AnalysisError{Message: "could not build upload body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, &body)
	if err != nil {
		return nil, &AnalysisError{Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &AnalysisError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &AnalysisError{StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AnalysisError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw, resp.StatusCode),
		}
	}

	if !gjson.ValidBytes(raw) {
		return nil, &AnalysisError{StatusCode: resp.StatusCode, Message: "malformed response body"}
	}

	return normalizeRecord(string(raw)), nil
}

// errorMessage extracts the server's error payload when present, else falls
// back to a status-derived message. FastAPI-style servers use "detail" where
// ours documents "message"; both are accepted.
func errorMessage(raw []byte, status int) string {
	if gjson.ValidBytes(raw) {
		if msg := gjson.GetBytes(raw, "message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
		if msg := gjson.GetBytes(raw, "detail"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
	}
	return fmt.Sprintf("server error: %d", status)
}

// normalizeRecord maps the raw predict response onto a Record, applying
// documented defaults per field.
func normalizeRecord(body string) *Record {
	rec := &Record{
		Label:        defaultLabel,
		Category:     defaultCategory,
		Instructions: defaultInstructions,
		Facts:        defaultFacts,
		EcoTip:       defaultEcoTip,
	}

	if label := gjson.Get(body, "label"); label.Exists() && label.String() != "" {
		rec.Label = label.String()
		// The server only sends a category for some models; the label is the
		// next best grouping.
		rec.Category = label.String()
	}
	if cat := gjson.Get(body, "category"); cat.Exists() && cat.String() != "" {
		rec.Category = cat.String()
	}
	if conf := gjson.Get(body, "confidence"); conf.Exists() {
		pct := roundPercent(conf.Float())
		rec.ConfidencePercent = &pct
	}
	if ins := gjson.Get(body, "instructions"); ins.Exists() && ins.String() != "" {
		rec.Instructions = ins.String()
	}
	if facts := gjson.Get(body, "facts"); facts.Exists() && facts.String() != "" {
		rec.Facts = facts.String()
	}
	if tip := gjson.Get(body, "eco_tip"); tip.Exists() && tip.String() != "" {
		rec.EcoTip = tip.String()
	}

	for _, box := range gjson.Get(body, "bboxes").Array() {
		b := BoundingBox{
			Label:             gjson.Get(box.Raw, "label").String(),
			ConfidencePercent: roundPercent(gjson.Get(box.Raw, "confidence").Float()),
		}
		coords := gjson.Get(box.Raw, "bbox").Array()
		for i := 0; i < len(coords) && i < 4; i++ {
			b.Rect[i] = coords[i].Float()
		}
		rec.Boxes = append(rec.Boxes, b)
	}

	return rec
}

// roundPercent converts a 0-1 confidence float into a rounded percentage.
func roundPercent(v float64) int {
	return int(math.Round(v * 100))
}
