package web

import "net/http"

// JSONRenderer writes an already encoded JSON document.
//
// Content-Type is always set to "application/json".
type JSONRenderer struct {
	Status int
	Body   []byte
}

func (jr *JSONRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	status := jr.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(jr.Body)
	return err
}

// NoContentRenderer writes a response with no body and a specific status code.
//
// If Status is 0, it defaults to http.StatusNoContent.
type NoContentRenderer struct {
	Status int
}

func (ncr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	status := ncr.Status
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
	return nil
}
