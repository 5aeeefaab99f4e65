package adhoc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/geopulse/harvester/pkg/catalog"
	"github.com/geopulse/harvester/pkg/common/logger"
	"github.com/geopulse/harvester/pkg/common/models"
	"github.com/gorilla/mux"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type Dispatcher interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Handler struct {
	jobs       *catalog.JobRepository
	posts      *catalog.PostRepository
	dispatcher Dispatcher
	queue      string
}

func NewHandler(jobs *catalog.JobRepository, posts *catalog.PostRepository, dispatcher Dispatcher, queue string) *Handler {
	return &Handler{jobs: jobs, posts: posts, dispatcher: dispatcher, queue: queue}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/adhoc", h.handleCreateJob).Methods(http.MethodPost)
	r.HandleFunc("/adhoc/{id}", h.handleGetJob).Methods(http.MethodGet)
}

func (h *Handler) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAdhocJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		http.Error(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		http.Error(w, "end_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if endDate.Before(startDate) {
		http.Error(w, "end_date must not precede start_date", http.StatusBadRequest)
		return
	}

	job := &catalog.AdhocJob{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Radius:    req.Radius,
		StartDate: startDate,
		EndDate:   endDate,
		Month:     req.Month,
		Weekday:   req.Weekday,
		SlotRange: req.SlotRange,
		Status:    catalog.JobStatusInProgress,
	}

	for _, label := range req.Tags {
		tag, err := h.posts.UpsertTag(r.Context(), label)
		if err != nil {
			logger.Log.WithError(err).Error("failed to resolve tag filter")
			http.Error(w, "failed to resolve tag filter", http.StatusInternalServerError)
			return
		}
		job.Tags = append(job.Tags, *tag)
	}
	for _, label := range req.Categories {
		category, err := h.posts.UpsertCategory(r.Context(), label)
		if err != nil {
			logger.Log.WithError(err).Error("failed to resolve category filter")
			http.Error(w, "failed to resolve category filter", http.StatusInternalServerError)
			return
		}
		job.Categories = append(job.Categories, *category)
	}

	if err := h.jobs.Create(r.Context(), job); err != nil {
		logger.Log.WithError(err).Error("failed to create ad-hoc job")
		http.Error(w, "failed to create job", http.StatusInternalServerError)
		return
	}

	task, err := NewSearchTask(job.ID)
	if err != nil {
		logger.Log.WithError(err).Error("failed to build search task")
		http.Error(w, "failed to dispatch job", http.StatusInternalServerError)
		return
	}
	if _, err := h.dispatcher.EnqueueContext(r.Context(), task, asynq.Queue(h.queue)); err != nil {
		logger.Log.WithError(err).WithField("job_id", job.ID).Error("failed to enqueue search task")
		http.Error(w, "failed to dispatch job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, models.AdhocJobResponse{
		ID:        job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	})
}

func (h *Handler) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		logger.Log.WithError(err).Error("failed to load ad-hoc job")
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.AdhocJobResponse{
		ID:            job.ID,
		Status:        job.Status,
		FailureDetail: job.FailureDetail,
		CreatedAt:     job.CreatedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
