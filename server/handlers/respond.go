package handlers

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendError writes err as an apierror.ErrorResponse with the status of its kind.
func sendError(w http.ResponseWriter, err error) {
	gwErr := apierror.FromError(err)
	writeJSON(w, gwErr.HTTPStatus(), gwErr.ToResponse())
}
