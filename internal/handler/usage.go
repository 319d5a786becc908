package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/charlahq/charla/internal/identity"
	"github.com/charlahq/charla/internal/service"
)

// UsageHandler serves usage dashboard snapshots.
type UsageHandler struct {
	quotas service.QuotaService
	logger *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(quotas service.QuotaService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		quotas: quotas,
		logger: logger,
	}
}

type usageStatsResponse struct {
	Tier       string    `json:"tier"`
	Used       int64     `json:"used"`
	Limit      int64     `json:"limit"`
	Remaining  int64     `json:"remaining"`
	Percentage float64   `json:"percentage"`
	ResetAt    time.Time `json:"resetAt"`
}

// Stats handles GET /api/usage.
func (h *UsageHandler) Stats(w http.ResponseWriter, r *http.Request) {
	acct := identity.GetAccount(r.Context())
	if acct == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	stats, err := h.quotas.GetUserStats(r.Context(), acct.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, usageStatsResponse{
		Tier:       string(stats.Tier),
		Used:       stats.Used,
		Limit:      stats.Limit,
		Remaining:  stats.Remaining,
		Percentage: stats.Percentage,
		ResetAt:    stats.ResetAt,
	})
}
