package handlers

import (
	"errors"
	"net/http"

	"github.com/toukir-bd/ImVeo/internal/imaging"
	"github.com/toukir-bd/ImVeo/internal/middleware"
	"github.com/toukir-bd/ImVeo/internal/workflow"
)

// GenerationStart accepts the multipart form {image, prompt, aspect_ratio},
// encodes the image, and starts the session's workflow. The response is the
// initial workflow snapshot; the page follows up on /v1/generations/current.
func (a *App) GenerationStart(w http.ResponseWriter, r *http.Request) {
	ctrl := a.session(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes+1024)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds the 10MB upload limit")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "request body is not a valid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "an image file is required")
		return
	}
	defer file.Close()

	encoded, err := a.Encoder.Encode(file, header.Header.Get("Content-Type"))
	if err != nil {
		switch {
		case errors.Is(err, imaging.ErrTooLarge):
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "image exceeds the 10MB upload limit")
		case errors.Is(err, imaging.ErrUnsupportedType):
			a.error(w, http.StatusUnsupportedMediaType, "unsupported_type", "only image uploads are supported")
		default:
			a.Logger.Error().Err(err).Msg("http: image encode failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to read the uploaded image")
		}
		return
	}

	input := workflow.Input{
		ImageBase64:   encoded.Data,
		ImageMIMEType: encoded.MediaType,
		Prompt:        r.FormValue("prompt"),
		AspectRatio:   r.FormValue("aspect_ratio"),
	}
	if err := ctrl.Start(input); err != nil {
		switch {
		case errors.Is(err, workflow.ErrBusy):
			a.error(w, http.StatusConflict, "busy", "a generation is already in flight")
		case errors.Is(err, workflow.ErrNoImage):
			a.error(w, http.StatusBadRequest, "bad_request", "an image file is required")
		default:
			a.Logger.Error().Err(err).Msg("http: generation start failed")
			a.error(w, http.StatusInternalServerError, "internal", "failed to start generation")
		}
		return
	}

	a.Logger.Info().
		Str("country", middleware.CountryFromContext(r.Context())).
		Str("aspect_ratio", input.AspectRatio).
		Int64("image_bytes", header.Size).
		Msg("http: generation started")

	a.json(w, http.StatusAccepted, ctrl.Snapshot())
}

// GenerationState reports the session's current workflow snapshot.
func (a *App) GenerationState(w http.ResponseWriter, r *http.Request) {
	ctrl := a.session(w, r)
	a.json(w, http.StatusOK, ctrl.Snapshot())
}

// GenerationDismiss clears a failed (or finished) generation back to idle.
func (a *App) GenerationDismiss(w http.ResponseWriter, r *http.Request) {
	ctrl := a.session(w, r)
	if err := ctrl.Dismiss(); err != nil {
		a.error(w, http.StatusConflict, "busy", "a generation is still in flight")
		return
	}
	a.json(w, http.StatusOK, ctrl.Snapshot())
}
