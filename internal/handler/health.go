package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"travelchat/internal/httputil"
)

// Check reports the health of one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
	logger *log.Logger
}

func NewHealthHandler(checks map[string]Check, logger *log.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, logger: logger.WithPrefix("Health")}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("check failed", "name", name, "err", err)
			resp.Checks[name] = "down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "up"
	}

	httputil.WriteJSON(w, status, resp)
}
