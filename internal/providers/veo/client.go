package veo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/toukir-bd/ImVeo/internal/infra"
)

const (
	// DefaultPrompt is substituted for submissions with a blank prompt.
	DefaultPrompt = "Animate this image with subtle, cinematic motion."

	// DefaultResolution is fixed for every generation.
	DefaultResolution = "720p"

	AspectLandscape = "16:9"
	AspectPortrait  = "9:16"
)

// ErrNoResult marks a completed operation that carried neither an error nor
// a video URI. It is a failure class of its own, distinct from a
// service-reported error.
var ErrNoResult = errors.New("veo: operation completed without a video")

// Options controls how the Veo client is configured.
type Options struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client issues video generation operations against the Gemini API. One
// creation request starts a long-running operation; afterwards the caller
// polls the operation snapshot until it reports done.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a Veo client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "veo-2.0-generate-001"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: client,
		logger:     logger,
	}
}

// Model returns the configured Veo model identifier.
func (c *Client) Model() string {
	return c.model
}

// GenerationRequest carries one submission. The image payload is required;
// the prompt may be blank and the aspect ratio is normalized before sending.
type GenerationRequest struct {
	ImageBase64   string
	ImageMIMEType string
	Prompt        string
	AspectRatio   string
}

// NormalizeAspect maps free-form input onto the two supported ratios,
// defaulting to landscape.
func NormalizeAspect(aspect string) string {
	if strings.TrimSpace(aspect) == AspectPortrait {
		return AspectPortrait
	}
	return AspectLandscape
}

type predictRequest struct {
	Instances  []predictInstance  `json:"instances"`
	Parameters *predictParameters `json:"parameters,omitempty"`
}

type predictInstance struct {
	Prompt string       `json:"prompt"`
	Image  *inlineImage `json:"image,omitempty"`
}

type inlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type predictParameters struct {
	NumberOfVideos int    `json:"numberOfVideos,omitempty"`
	Resolution     string `json:"resolution,omitempty"`
	AspectRatio    string `json:"aspectRatio,omitempty"`
}

// Operation is the remote handle for one generation job. It is replaced
// wholesale by each poll; fields mirror the wire format.
type Operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *OperationError    `json:"error,omitempty"`
	Response *operationResponse `json:"response,omitempty"`
}

// IsDone reports whether the remote operation has finished, successfully or not.
func (o *Operation) IsDone() bool {
	return o != nil && o.Done
}

// videoURI extracts the first generated video reference, if any.
func (o *Operation) videoURI() string {
	if o == nil || o.Response == nil || o.Response.GenerateVideoResponse == nil {
		return ""
	}
	for _, sample := range o.Response.GenerateVideoResponse.GeneratedSamples {
		if sample.Video != nil && sample.Video.URI != "" {
			return sample.Video.URI
		}
	}
	return ""
}

// OperationError is the service-reported failure payload of an operation.
type OperationError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

type operationResponse struct {
	GenerateVideoResponse *generateVideoResponse `json:"generateVideoResponse,omitempty"`
}

type generateVideoResponse struct {
	GeneratedSamples []generatedSample `json:"generatedSamples,omitempty"`
}

type generatedSample struct {
	Video *videoRef `json:"video,omitempty"`
}

type videoRef struct {
	URI string `json:"uri,omitempty"`
}

// Submit sends exactly one creation request and returns the initial
// operation handle. A blank prompt is replaced with DefaultPrompt; the
// aspect ratio is normalized and the remaining generation parameters are
// fixed (one video, 720p).
func (c *Client) Submit(ctx context.Context, apiKey string, req GenerationRequest) (*Operation, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = DefaultPrompt
	}

	payload := predictRequest{
		Instances: []predictInstance{{
			Prompt: prompt,
			Image: &inlineImage{
				BytesBase64Encoded: req.ImageBase64,
				MimeType:           req.ImageMIMEType,
			},
		}},
		Parameters: &predictParameters{
			NumberOfVideos: 1,
			Resolution:     DefaultResolution,
			AspectRatio:    NormalizeAspect(req.AspectRatio),
		},
	}

	var op Operation
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(c.model))
	if err := c.invoke(ctx, http.MethodPost, path, apiKey, payload, &op); err != nil {
		return nil, fmt.Errorf("veo: submit generation: %w", err)
	}
	if op.Name == "" {
		return nil, fmt.Errorf("veo: submit generation: operation name missing in response")
	}

	c.logger.Debug().
		Str("operation", op.Name).
		Str("model", c.model).
		Msg("veo: generation submitted")

	return &op, nil
}

// Poll fetches the latest snapshot of a previously created operation. It
// never creates new work; callers own the wait between successive polls.
func (c *Client) Poll(ctx context.Context, apiKey string, op *Operation) (*Operation, error) {
	if op == nil || op.Name == "" {
		return nil, fmt.Errorf("veo: poll: operation handle is required")
	}

	var latest Operation
	if err := c.invoke(ctx, http.MethodGet, "/"+strings.TrimLeft(op.Name, "/"), apiKey, nil, &latest); err != nil {
		return nil, fmt.Errorf("veo: poll operation: %w", err)
	}
	return &latest, nil
}

// VideoURL resolves a completed operation into a playable URL. The access
// key is appended so the view layer can use the URL directly for playback
// and download.
func (c *Client) VideoURL(op *Operation, apiKey string) (string, error) {
	if op == nil || !op.Done {
		return "", fmt.Errorf("veo: operation is not finished")
	}
	if op.Error != nil {
		message := strings.TrimSpace(op.Error.Message)
		if message == "" {
			message = "Video generation failed."
		}
		return "", &GenerationError{Code: op.Error.Code, Status: op.Error.Status, Message: message}
	}
	uri := op.videoURI()
	if uri == "" {
		return "", ErrNoResult
	}
	return uri + "&key=" + apiKey, nil
}

// GenerationError is a service-reported generation failure.
type GenerationError struct {
	Code    int
	Status  string
	Message string
}

func (e *GenerationError) Error() string {
	return e.Message
}

// APIError is a non-2xx HTTP response from the Gemini API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gemini status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gemini status %d", e.StatusCode)
}

const staleCredentialSignature = "Requested entity was not found"

// IsStaleCredential reports whether err looks like the invalid-key failure
// the API produces for operations created under a different key. Structured
// codes are preferred; matching the message text is a compatibility shim for
// responses that omit them, and is best-effort only.
func IsStaleCredential(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound || apiErr.Status == "NOT_FOUND" {
			return true
		}
	}
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		if genErr.Code == http.StatusNotFound || genErr.Status == "NOT_FOUND" {
			return true
		}
	}
	return strings.Contains(err.Error(), staleCredentialSignature)
}

type apiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

func (c *Client) invoke(ctx context.Context, method, path, apiKey string, payload, out any) error {
	endpoint := c.baseURL + path

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if apiKey != "" {
		q.Set("key", apiKey)
	}
	req.URL.RawQuery = q.Encode()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var decoded apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err == nil && decoded.Error.Message != "" {
			apiErr.Message = decoded.Error.Message
			apiErr.Status = decoded.Error.Status
		} else if data, _ := io.ReadAll(resp.Body); len(data) > 0 {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}
