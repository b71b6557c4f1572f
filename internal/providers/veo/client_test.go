package veo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitSendsFixedParameters(t *testing.T) {
	var captured predictRequest
	var gotPath, gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Operation{Name: "models/veo-2.0-generate-001/operations/op-1"})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	op, err := client.Submit(context.Background(), "k-123", GenerationRequest{
		ImageBase64:   "aGVsbG8=",
		ImageMIMEType: "image/png",
		Prompt:        "",
		AspectRatio:   "9:16",
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if op.Name != "models/veo-2.0-generate-001/operations/op-1" {
		t.Fatalf("operation name mismatch: %q", op.Name)
	}
	if gotPath != "/models/veo-2.0-generate-001:predictLongRunning" {
		t.Fatalf("path mismatch: %q", gotPath)
	}
	if gotKey != "k-123" {
		t.Fatalf("key mismatch: %q", gotKey)
	}
	if len(captured.Instances) != 1 {
		t.Fatalf("expected one instance, got %d", len(captured.Instances))
	}
	if captured.Instances[0].Prompt != DefaultPrompt {
		t.Fatalf("blank prompt must become the fallback, got %q", captured.Instances[0].Prompt)
	}
	if captured.Instances[0].Image == nil || captured.Instances[0].Image.BytesBase64Encoded != "aGVsbG8=" {
		t.Fatalf("image payload mismatch: %#v", captured.Instances[0].Image)
	}
	if captured.Parameters == nil {
		t.Fatal("parameters missing")
	}
	if captured.Parameters.NumberOfVideos != 1 {
		t.Fatalf("numberOfVideos = %d, want 1", captured.Parameters.NumberOfVideos)
	}
	if captured.Parameters.Resolution != DefaultResolution {
		t.Fatalf("resolution = %q, want %q", captured.Parameters.Resolution, DefaultResolution)
	}
	if captured.Parameters.AspectRatio != AspectPortrait {
		t.Fatalf("aspectRatio = %q, want %q", captured.Parameters.AspectRatio, AspectPortrait)
	}
}

func TestSubmitKeepsCallerPrompt(t *testing.T) {
	var captured predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(Operation{Name: "operations/op-2"})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	if _, err := client.Submit(context.Background(), "k", GenerationRequest{
		ImageBase64:   "eA==",
		ImageMIMEType: "image/jpeg",
		Prompt:        "a dog surfing a wave",
	}); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if captured.Instances[0].Prompt != "a dog surfing a wave" {
		t.Fatalf("prompt mutated: %q", captured.Instances[0].Prompt)
	}
	if captured.Parameters.AspectRatio != AspectLandscape {
		t.Fatalf("aspect must default to landscape, got %q", captured.Parameters.AspectRatio)
	}
}

func TestSubmitRejectsMissingOperationName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	if _, err := client.Submit(context.Background(), "k", GenerationRequest{ImageBase64: "eA==", ImageMIMEType: "image/png"}); err == nil {
		t.Fatal("expected error for response without operation name")
	}
}

func TestPollFetchesOperationSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("poll must be a GET, got %s", r.Method)
		}
		if r.URL.Path != "/models/veo-2.0-generate-001/operations/op-3" {
			t.Fatalf("poll path mismatch: %q", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"name": "models/veo-2.0-generate-001/operations/op-3",
			"done": true,
			"response": {"generateVideoResponse": {"generatedSamples": [{"video": {"uri": "https://x/video1"}}]}}
		}`)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	op, err := client.Poll(context.Background(), "k", &Operation{Name: "models/veo-2.0-generate-001/operations/op-3"})
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if !op.IsDone() {
		t.Fatal("operation must report done")
	}

	url, err := client.VideoURL(op, "secret")
	if err != nil {
		t.Fatalf("VideoURL error: %v", err)
	}
	if url != "https://x/video1&key=secret" {
		t.Fatalf("resolved url mismatch: %q", url)
	}
}

func TestPollRequiresHandle(t *testing.T) {
	client := NewClient(Options{})
	if _, err := client.Poll(context.Background(), "k", nil); err == nil {
		t.Fatal("expected error for nil handle")
	}
}

func TestVideoURLServiceError(t *testing.T) {
	client := NewClient(Options{})
	op := &Operation{Done: true, Error: &OperationError{Code: 400, Message: "prompt violates policy"}}

	_, err := client.VideoURL(op, "k")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want GenerationError", err)
	}
	if genErr.Message != "prompt violates policy" {
		t.Fatalf("message mismatch: %q", genErr.Message)
	}
}

func TestVideoURLServiceErrorWithoutMessage(t *testing.T) {
	client := NewClient(Options{})
	op := &Operation{Done: true, Error: &OperationError{Code: 500}}

	_, err := client.VideoURL(op, "k")
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("error = %v, want GenerationError", err)
	}
	if genErr.Message != "Video generation failed." {
		t.Fatalf("fallback message mismatch: %q", genErr.Message)
	}
}

func TestVideoURLMissingResult(t *testing.T) {
	client := NewClient(Options{})
	op := &Operation{Done: true}

	if _, err := client.VideoURL(op, "k"); !errors.Is(err, ErrNoResult) {
		t.Fatalf("error = %v, want ErrNoResult", err)
	}
}

func TestVideoURLNotDone(t *testing.T) {
	client := NewClient(Options{})
	if _, err := client.VideoURL(&Operation{Name: "operations/op"}, "k"); err == nil {
		t.Fatal("expected error for unfinished operation")
	}
}

func TestInvokeDecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"code": 404, "message": "Requested entity was not found.", "status": "NOT_FOUND"}}`)
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	_, err := client.Poll(context.Background(), "k", &Operation{Name: "operations/gone"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", apiErr.StatusCode)
	}
	if !IsStaleCredential(err) {
		t.Fatal("a NOT_FOUND api error must classify as stale credential")
	}
}

func TestIsStaleCredential(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "message signature", err: errors.New("rpc failed: Requested entity was not found"), want: true},
		{name: "generation error 404", err: &GenerationError{Code: 404, Message: "gone"}, want: true},
		{name: "generation error status", err: &GenerationError{Status: "NOT_FOUND", Message: "gone"}, want: true},
		{name: "unrelated error", err: errors.New("quota exceeded"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStaleCredential(tt.err); got != tt.want {
				t.Fatalf("IsStaleCredential = %v, want %v", got, tt.want)
			}
		})
	}
}
