package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write json error: %v", err)
	}
}

// WriteError replies with the {"error": ...} body the API uses everywhere.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteRequestError maps an error onto the wire, defaulting to 500 for
// anything that is not a RequestError.
func WriteRequestError(w http.ResponseWriter, err error) {
	if re, ok := err.(*RequestError); ok {
		WriteError(w, re.Status, re.Msg)
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}
