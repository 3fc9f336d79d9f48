package http

import (
	"encoding/json"
	"net/http"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError writes {"error": msg} plus any extra keys and the request id.
func respondError(w http.ResponseWriter, r *http.Request, status int, msg string, extra map[string]interface{}) {
	body := make(map[string]interface{}, len(extra)+2)
	for k, v := range extra {
		body[k] = v
	}
	body["error"] = msg
	if id := GetRequestID(r.Context()); id != "" {
		body["request_id"] = id
	}
	respondJSON(w, status, body)
}
