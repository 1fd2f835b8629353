package handlers

import (
	"net/http"

	"github.com/ThatCatDev/slusha/server/pkg/api"
)

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.StatusResponse{Status: "ok"})
}
