package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/kevadb/keva/internal/runtime"
)

// GeneralController handles health and service metadata endpoints.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates the general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
}

// handleHealth returns 200 {"status":"ok"} when storage answers, 503
// otherwise. Health is unwrapped JSON so probes stay trivial.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "not_serving"})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
