package inference

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecosort/ecoscan/pkg/media"
)

func testItem(t *testing.T) *media.Item {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bottle.jpg")
	if err := os.WriteFile(path, []byte("fake jpeg bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &media.Item{Kind: media.KindImage, Path: path, Name: "bottle.jpg", SizeBytes: 15, MIMEType: "image/jpeg"}
}

func TestAnalyze_Success(t *testing.T) {
	var gotFilename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/v1/predict" {
			t.Errorf("path = %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("no file field: %v", err)
		}
		f.Close()
		gotFilename = hdr.Filename

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"label": "Plastic Bottle",
			"category": "Recyclable",
			"confidence": 0.874,
			"instructions": "Dispose in the plastic recycling bin.",
			"facts": "PET bottles can be recycled into clothing.",
			"eco_tip": "Crush bottles to save bin space.",
			"bboxes": [{"label": "bottle", "confidence": 0.91, "bbox": [10, 20, 110, 220]}]
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	rec, err := client.Analyze(context.Background(), testItem(t))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if gotFilename != "bottle.jpg" {
		t.Errorf("uploaded filename = %q", gotFilename)
	}
	if rec.Label != "Plastic Bottle" || rec.Category != "Recyclable" {
		t.Errorf("label/category = %q/%q", rec.Label, rec.Category)
	}
	if rec.ConfidencePercent == nil || *rec.ConfidencePercent != 87 {
		t.Errorf("confidence = %v, want 87", rec.ConfidencePercent)
	}
	if len(rec.Boxes) != 1 {
		t.Fatalf("boxes = %d, want 1", len(rec.Boxes))
	}
	box := rec.Boxes[0]
	if box.Label != "bottle" || box.ConfidencePercent != 91 {
		t.Errorf("box = %+v", box)
	}
	if box.Rect != [4]float64{10, 20, 110, 220} {
		t.Errorf("rect = %v", box.Rect)
	}
}

func TestAnalyze_DefaultsForMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	rec, err := client.Analyze(context.Background(), testItem(t))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if rec.Label != "Unknown Item" {
		t.Errorf("label = %q", rec.Label)
	}
	if rec.Category != "Uncategorized" {
		t.Errorf("category = %q", rec.Category)
	}
	if rec.ConfidencePercent != nil {
		t.Errorf("confidence should be nil when absent, got %d", *rec.ConfidencePercent)
	}
	if rec.Instructions != "No sorting instructions available." {
		t.Errorf("instructions = %q", rec.Instructions)
	}
	if rec.EcoTip != "Always clean items before recycling." {
		t.Errorf("eco tip = %q", rec.EcoTip)
	}
	if len(rec.Boxes) != 0 {
		t.Errorf("boxes = %d, want 0", len(rec.Boxes))
	}
}

func TestAnalyze_CategoryFallsBackToLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"label": "Glass"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	rec, err := client.Analyze(context.Background(), testItem(t))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if rec.Category != "Glass" {
		t.Errorf("category = %q, want label fallback Glass", rec.Category)
	}
}

func TestAnalyze_ServerErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"message payload", http.StatusBadGateway, `{"message": "model crashed"}`, "model crashed"},
		{"fastapi detail payload", http.StatusInternalServerError, `{"detail": "Prediction failed"}`, "Prediction failed"},
		{"empty body", http.StatusNotFound, ``, "server error: 404"},
		{"non-json body", http.StatusBadGateway, `<html>boom</html>`, "server error: 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, 5*time.Second)
			_, err := client.Analyze(context.Background(), testItem(t))
			if err == nil {
				t.Fatal("expected error")
			}
			var aerr *AnalysisError
			if !errors.As(err, &aerr) {
				t.Fatalf("expected *AnalysisError, got %T", err)
			}
			if aerr.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", aerr.Error(), tt.wantMsg)
			}
			if aerr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", aerr.StatusCode, tt.status)
			}
		})
	}
}

func TestAnalyze_MalformedSuccessBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`this is not json`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, 5*time.Second)
	_, err := client.Analyze(context.Background(), testItem(t))

	var aerr *AnalysisError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *AnalysisError, got %v", err)
	}
	if aerr.Message != "malformed response body" {
		t.Errorf("message = %q", aerr.Message)
	}
}

func TestAnalyze_NetworkFailure(t *testing.T) {
	// Point at a closed server.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL, time.Second)
	_, err := client.Analyze(context.Background(), testItem(t))

	var aerr *AnalysisError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *AnalysisError, got %v", err)
	}
}
