package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/toukir-bd/ImVeo/internal/infra"
	"github.com/toukir-bd/ImVeo/internal/infra/credentials"
	"github.com/toukir-bd/ImVeo/internal/providers/veo"
)

// State identifies where a generation currently is.
type State string

const (
	StateIdle           State = "idle"
	StateAuthenticating State = "authenticating"
	StateSubmitting     State = "submitting"
	StatePolling        State = "polling"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
)

const (
	msgAuthenticating = "Initializing authentication..."
	msgSubmitting     = "Uploading image & starting generation..."
	msgPolling        = "Generating video... this can take a few minutes."
	msgDone           = "Done!"

	errMsgKeyRequired = "An API key must be selected before generating. Please select a key and try again."
	errMsgStaleKey    = "API Key session invalid. Please try generating again to select a new key."
	errMsgNoResult    = "Video generation completed but no video was returned."
	errMsgTimedOut    = "Timed out waiting for the video service. Please try again."
)

// ErrNoImage is returned by Start when no image was provided; the controller
// stays Idle.
var ErrNoImage = errors.New("workflow: an image is required to start a generation")

// ErrBusy is returned by Start while a generation is already in flight, and
// by Dismiss for states that cannot be dismissed.
var ErrBusy = errors.New("workflow: a generation is already in flight")

// Snapshot is the UI-facing view of the workflow. Exactly one of busy,
// video_url, error, or plain idle holds at any time.
type Snapshot struct {
	State    State  `json:"state"`
	Busy     bool   `json:"busy"`
	Message  string `json:"message,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Input is one immutable submission: the encoded image plus the caller's
// prompt and aspect ratio.
type Input struct {
	ImageBase64   string
	ImageMIMEType string
	Prompt        string
	AspectRatio   string
}

// OperationClient is the remote side of the workflow; satisfied by
// *veo.Client.
type OperationClient interface {
	Submit(ctx context.Context, apiKey string, req veo.GenerationRequest) (*veo.Operation, error)
	Poll(ctx context.Context, apiKey string, op *veo.Operation) (*veo.Operation, error)
	VideoURL(op *veo.Operation, apiKey string) (string, error)
}

// Policy tunes the poll loop without touching control flow. MaxPollAttempts
// of zero polls until the remote operation settles.
type Policy struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

// Controller drives one generation at a time through
// Idle → Authenticating → Submitting → Polling → Succeeded/Failed and owns
// the workflow snapshot the view layer reads.
type Controller struct {
	client OperationClient
	creds  credentials.Selector
	policy Policy
	logger infra.Logger

	// launch and sleep are swapped out in tests.
	launch func(func())
	sleep  func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	snap     Snapshot
	inFlight bool
}

// New constructs a Controller. The credential selector is injected rather
// than reached globally so it can be substituted in tests.
func New(client OperationClient, creds credentials.Selector, policy Policy, logger infra.Logger) *Controller {
	if policy.PollInterval <= 0 {
		policy.PollInterval = 5 * time.Second
	}
	c := &Controller{
		client: client,
		creds:  creds,
		policy: policy,
		logger: logger,
		launch: func(f func()) { go f() },
		sleep:  sleepCtx,
		snap:   Snapshot{State: StateIdle},
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current workflow state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Busy reports whether a generation is currently in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Start begins a generation. It rejects a missing image without leaving
// Idle, and rejects re-entry while a generation is in flight. The remote job
// runs detached from the caller: once submitted it completes or fails on its
// own even if the page stops watching.
func (c *Controller) Start(in Input) error {
	if in.ImageBase64 == "" {
		return ErrNoImage
	}

	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return ErrBusy
	}
	c.inFlight = true
	c.snap = Snapshot{State: StateAuthenticating, Busy: true, Message: msgAuthenticating}
	c.mu.Unlock()

	c.launch(func() { c.run(context.Background(), in) })
	return nil
}

// Dismiss resets a Failed workflow back to Idle. The selected image and
// prompt live on the page and are untouched. Dismissing while Idle is a
// no-op; dismissing a busy workflow is rejected.
func (c *Controller) Dismiss() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.snap.State {
	case StateFailed, StateSucceeded, StateIdle:
		c.snap = Snapshot{State: StateIdle}
		return nil
	default:
		return ErrBusy
	}
}

func (c *Controller) run(ctx context.Context, in Input) {
	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	ok, err := c.creds.HasSelectedKey(ctx)
	if err != nil {
		c.fail(ctx, err)
		return
	}
	if !ok {
		if err := c.creds.OpenSelector(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("workflow: key selection declined")
			c.failWithMessage(errMsgKeyRequired)
			return
		}
	}
	apiKey, err := c.creds.APIKey(ctx)
	if err != nil {
		c.failWithMessage(errMsgKeyRequired)
		return
	}

	c.transition(StateSubmitting, msgSubmitting)
	op, err := c.client.Submit(ctx, apiKey, veo.GenerationRequest{
		ImageBase64:   in.ImageBase64,
		ImageMIMEType: in.ImageMIMEType,
		Prompt:        in.Prompt,
		AspectRatio:   in.AspectRatio,
	})
	if err != nil {
		c.fail(ctx, err)
		return
	}
	c.logger.Info().Str("operation", op.Name).Msg("workflow: generation submitted")

	c.transition(StatePolling, msgPolling)
	attempts := 0
	for !op.IsDone() {
		if c.policy.MaxPollAttempts > 0 && attempts >= c.policy.MaxPollAttempts {
			c.failWithMessage(errMsgTimedOut)
			return
		}
		if err := c.sleep(ctx, c.policy.PollInterval); err != nil {
			c.fail(ctx, err)
			return
		}
		op, err = c.client.Poll(ctx, apiKey, op)
		if err != nil {
			c.fail(ctx, err)
			return
		}
		attempts++
	}

	videoURL, err := c.client.VideoURL(op, apiKey)
	if err != nil {
		if errors.Is(err, veo.ErrNoResult) {
			c.failWithMessage(errMsgNoResult)
			return
		}
		c.fail(ctx, err)
		return
	}

	c.mu.Lock()
	c.snap = Snapshot{State: StateSucceeded, Message: msgDone, VideoURL: videoURL}
	c.mu.Unlock()
	c.logger.Info().Str("operation", op.Name).Msg("workflow: generation succeeded")
}

func (c *Controller) transition(state State, message string) {
	c.mu.Lock()
	c.snap = Snapshot{State: state, Busy: true, Message: message}
	c.mu.Unlock()
}

// fail surfaces err on the snapshot. A stale-credential failure additionally
// re-opens the key selector (best-effort, its own failure ignored) and
// replaces the surfaced message with a retry prompt.
func (c *Controller) fail(ctx context.Context, err error) {
	message := err.Error()
	if veo.IsStaleCredential(err) {
		if selErr := c.creds.OpenSelector(ctx); selErr != nil {
			c.logger.Debug().Err(selErr).Msg("workflow: key reselection failed")
		}
		message = errMsgStaleKey
	}
	c.logger.Error().Err(err).Msg("workflow: generation failed")
	c.failWithMessage(message)
}

func (c *Controller) failWithMessage(message string) {
	c.mu.Lock()
	c.snap = Snapshot{State: StateFailed, Error: message}
	c.mu.Unlock()
}
