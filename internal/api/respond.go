package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"listing-map/internal/drawing"
	"listing-map/internal/layer"
	"listing-map/internal/logger"
	"listing-map/internal/mapview"
	"listing-map/internal/wizard"
)

var errBadRequest = errors.New("malformed request")

const maxJSONBody = 1 << 20

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf 前置条件不满足 -> 409，未知会话/图层 -> 404，输入不合法 -> 400
func statusOf(err error) int {
	switch {
	case errors.Is(err, errSessionNotFound), errors.Is(err, layer.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, wizard.ErrBadUpload),
		errors.Is(err, wizard.ErrUnsupported),
		errors.Is(err, drawing.ErrUnknownShape),
		errors.Is(err, drawing.ErrInvalidRadius),
		errors.Is(err, mapview.ErrBadViewport),
		errors.Is(err, layer.ErrBadGeometry),
		errors.Is(err, layer.ErrNoGeometry):
		return http.StatusBadRequest
	case errors.Is(err, errNoViewport),
		errors.Is(err, wizard.ErrWrongStep),
		errors.Is(err, wizard.ErrInvalidEvent),
		errors.Is(err, wizard.ErrNoUpload),
		errors.Is(err, wizard.ErrNothingToDraw),
		errors.Is(err, drawing.ErrNotActive),
		errors.Is(err, drawing.ErrFinished),
		errors.Is(err, drawing.ErrNotFinished),
		errors.Is(err, drawing.ErrTooFewPoints),
		errors.Is(err, drawing.ErrNotPolygon),
		errors.Is(err, drawing.ErrNotMarker),
		errors.Is(err, layer.ErrNotEditing):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.Component("api").Warn("api_internal_error", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// decodeJSON 空请求体视为零值
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errBadRequest
	}
	return nil
}
