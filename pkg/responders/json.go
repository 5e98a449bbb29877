// Package responders writes API responses in the shapes the handlers share.
package responders

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// internalErrorBody is served when a payload cannot be marshaled. It is a
// raw literal so writing it can never itself fail.
var internalErrorBody = []byte(`{"success":false,"error":{"code":"INTERNAL_ERROR","message":"internal error"}}` + "\n")

// JSON writes payload as an application/json response with the given status.
// The payload is marshaled before any bytes hit the wire, so a marshal
// failure still produces a well-formed error response instead of a
// truncated body.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")

	if payload == nil {
		w.WriteHeader(status)
		return
	}

	body, err := marshalNoEscape(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(internalErrorBody)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// marshalNoEscape marshals without HTML escaping; responses carry URLs and
// provider messages that must round-trip verbatim.
func marshalNoEscape(payload any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
