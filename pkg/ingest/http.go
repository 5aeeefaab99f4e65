package ingest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/geopulse/harvester/pkg/catalog"
	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/common/models"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type Handler struct {
	service   *Service
	locations *catalog.LocationRepository
}

func NewHandler(service *Service, locations *catalog.LocationRepository) *Handler {
	return &Handler{service: service, locations: locations}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/locations/{id}/ingest", h.handleIngestLocation).Methods(http.MethodPost)
}

// handleIngestLocation is the "ingest one location now" trigger used by the
// operational layer.
func (h *Handler) handleIngestLocation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	loc, err := h.locations.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "location not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to load location")
		http.Error(w, "failed to load location", http.StatusInternalServerError)
		return
	}

	if err := h.service.IngestLocation(r.Context(), loc); err != nil {
		logger.Log.WithError(err).WithField("location", loc.ExternalID).Error("ingestion failed")
		http.Error(w, "ingestion failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, models.IngestLocationResponse{
		LocationID:  loc.ID,
		Cursor:      loc.LatestCursor,
		LastUpdated: loc.LastUpdated,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
