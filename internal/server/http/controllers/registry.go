package controllers

import (
	"net/http"

	"github.com/kevadb/keva/internal/runtime"
	kvsvc "github.com/kevadb/keva/internal/services/kv"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general *GeneralController
	kb      *KBController
}

// NewControllerRegistry initializes all controllers with the provided
// runtime and service.
func NewControllerRegistry(rt *runtime.Runtime, svc *kvsvc.Service) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		kb:      NewKBController(svc),
	}
}

// RegisterAllRoutes registers every controller's routes with the mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.kb.RegisterRoutes(mux)
}
