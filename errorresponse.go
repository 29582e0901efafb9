package oidcrs

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSONError(w http.ResponseWriter, code, description string) {
	body, err := json.Marshal(errorBody{Error: code, ErrorDescription: description})
	if err != nil {
		return
	}
	w.Write(body)
}
