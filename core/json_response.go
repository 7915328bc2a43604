package core

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Response renders itself to an http.ResponseWriter.
// Handlers build a Response and the router writes it, keeping status-code
// mapping in one place.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// JSONResponse is the standard JSON response envelope.
type JSONResponse struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail contains client-visible error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type jsonResponse struct {
	status int
	body   any
}

func (j jsonResponse) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(j.status)
	if j.body == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(j.body)
}

// JSON creates a 200 JSON response wrapping data in the standard envelope.
func JSON(data any) Response {
	return jsonResponse{
		status: http.StatusOK,
		body:   JSONResponse{Data: data},
	}
}

// JSONStatus creates a JSON response with an explicit status code.
func JSONStatus(status int, data any) Response {
	return jsonResponse{
		status: status,
		body:   JSONResponse{Data: data},
	}
}

// JSONRaw creates a JSON response without the envelope. Used by the webhook
// endpoint where the provider expects an exact body shape.
func JSONRaw(status int, body any) Response {
	return jsonResponse{status: status, body: body}
}

// NoContent creates an empty 204 response.
func NoContent() Response {
	return jsonResponse{status: http.StatusNoContent}
}

// JSONError creates a JSON error response from an error. HTTPError values
// (including wrapped ones) keep their status and key; anything else is
// reported as an opaque 500 so internal details never leak to clients.
func JSONError(err error) Response {
	status := http.StatusInternalServerError
	detail := &ErrorDetail{
		Code:    "internal_server_error",
		Message: http.StatusText(http.StatusInternalServerError),
	}

	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		detail.Code = httpErr.Key
		detail.Message = http.StatusText(httpErr.Code)
	}

	return jsonResponse{
		status: status,
		body:   JSONResponse{Error: detail},
	}
}

// Render writes a Response, falling back to a plain 500 when rendering itself fails.
func Render(w http.ResponseWriter, r *http.Request, resp Response) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := resp.Render(w, r); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
