package quota

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/common/models"
	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/quota", h.handleGetQuota).Methods(http.MethodGet)
	r.HandleFunc("/quota/accounting", h.handleRunAccounting).Methods(http.MethodPost)
}

func (h *Handler) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	count, err := h.service.HourlyCount(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to count quota entries")
		http.Error(w, "failed to count quota entries", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, models.QuotaResponse{HourlyCalls: count, MeasuredAt: time.Now().UTC()})
}

func (h *Handler) handleRunAccounting(w http.ResponseWriter, r *http.Request) {
	pruned, hourly, err := h.service.RunAccounting(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("quota accounting failed")
		http.Error(w, "quota accounting failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, models.AccountingResponse{Pruned: pruned, HourlyCalls: hourly})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
