package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
)

func (rt *Router) settingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		flags, err := rt.settings.Get(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, flags)
	case http.MethodPatch:
		rt.patchSettings(w, r)
	default:
		writeMethodNotAllowed(w)
	}
}

// patchSettings sets key to value, or flips a boolean key when value is
// omitted.
func (rt *Router) patchSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "key is required"})
		return
	}

	if req.Value == nil {
		flags, err := rt.settings.Toggle(r.Context(), req.Key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, flags)
		return
	}

	flags, err := rt.settings.Update(r.Context(), req.Key, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flags)
}
