package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

// OpenAPIHandler serves the API specification in YAML and JSON.
type OpenAPIHandler struct {
	specPath string
	baseDir  string
}

// NewOpenAPIHandler creates the handler. Paths are resolved up front so
// a misconfigured path cannot escape the spec directory.
func NewOpenAPIHandler(specPath string) *OpenAPIHandler {
	absPath, _ := filepath.Abs(specPath)
	baseDir, _ := filepath.Abs(filepath.Dir(specPath))
	return &OpenAPIHandler{specPath: absPath, baseDir: baseDir}
}

// RegisterRoutes registers the spec routes on the root router.
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/openapi.yaml", h.ServeYAML).Methods("GET")
	r.HandleFunc("/api/v1/openapi.json", h.ServeJSON).Methods("GET")
}

// loadSpec validates the path and reads the spec file.
func (h *OpenAPIHandler) loadSpec() ([]byte, error) {
	absPath, err := filepath.Abs(filepath.Clean(h.specPath))
	if err != nil {
		return nil, err
	}
	relPath, err := filepath.Rel(h.baseDir, absPath)
	if err != nil {
		return nil, err
	}
	if filepath.IsAbs(relPath) || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return nil, os.ErrPermission
	}
	return os.ReadFile(absPath)
}

// ServeYAML serves the spec as-is.
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, r *http.Request) {
	data, err := h.loadSpec()
	if err != nil {
		http.Error(w, "OpenAPI specification not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	if _, err := w.Write(data); err != nil {
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
	}
}

// ServeJSON converts the YAML spec to JSON on the fly.
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	data, err := h.loadSpec()
	if err != nil {
		http.Error(w, "OpenAPI specification not found", http.StatusNotFound)
		return
	}

	var spec map[string]any
	if err := yaml.Unmarshal(data, &spec); err != nil {
		http.Error(w, "Failed to parse OpenAPI specification", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(spec); err != nil {
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
	}
}
