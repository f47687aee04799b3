package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/baqup/pkg/appcontext"
	"github.com/yurykabanov/baqup/pkg/domain"
	"github.com/yurykabanov/baqup/pkg/state"
)

type BackupRepository interface {
	FindLastSuccessful(context.Context) ([]domain.Backup, error)
}

type BackupMetricHandler struct {
	logger logrus.FieldLogger
	repo   BackupRepository
}

func NewBackupMetricHandler(logger logrus.FieldLogger, repo BackupRepository) *BackupMetricHandler {
	return &BackupMetricHandler{
		logger: logger,
		repo:   repo,
	}
}

type backupMetricResponse struct {
	Container        string `json:"container"`
	Target           string `json:"target"`
	Schedule         string `json:"schedule"`
	RemotePath       string `json:"remote_path"`
	BackupSize       int64  `json:"backup_size"`
	BackupSizeHuman  string `json:"backup_size_human"`
	LastSuccessfulAt int64  `json:"last_successful_at_mtime"`
	LastCompletion   int64  `json:"last_completion_mtime"`
}

func (h *BackupMetricHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	bb, err := h.repo.FindLastSuccessful(ctx)
	if err != nil {
		logger.WithError(err).Error("Unable to query last successful backups")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	result := make([]backupMetricResponse, 0, len(bb))

	for _, b := range bb {
		result = append(result, backupMetricResponse{
			Container:        b.ContainerName,
			Target:           b.TargetType + "-" + b.TargetInstance,
			Schedule:         b.Schedule,
			RemotePath:       b.RemotePath,
			BackupSize:       b.Size,
			BackupSizeHuman:  humanize.Bytes(uint64(b.Size)),
			LastSuccessfulAt: b.TriggeredAt.UnixNano() / 1e6,
			LastCompletion:   b.DurationMs,
		})
	}

	writeJSON(w, logger, result)
}

type StateSnapshot interface {
	Targets() []state.TargetSnapshot
	Events() []domain.Event
}

// TargetMetricHandler exposes the in-memory state: per-target status and the recent event log.
type TargetMetricHandler struct {
	logger logrus.FieldLogger
	state  StateSnapshot
}

func NewTargetMetricHandler(logger logrus.FieldLogger, state StateSnapshot) *TargetMetricHandler {
	return &TargetMetricHandler{
		logger: logger,
		state:  state,
	}
}

type targetMetric struct {
	Container   string     `json:"container"`
	Target      string     `json:"target"`
	Status      string     `json:"status"`
	Cron        string     `json:"cron"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
}

type targetMetricResponse struct {
	Targets []targetMetric `json:"targets"`
	Events  []domain.Event `json:"events"`
}

func (h *TargetMetricHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := appcontext.LoggerFromContext(h.logger, r.Context())

	snapshot := h.state.Targets()

	result := targetMetricResponse{
		Targets: make([]targetMetric, 0, len(snapshot)),
		Events:  h.state.Events(),
	}
	if result.Events == nil {
		result.Events = []domain.Event{}
	}

	for _, t := range snapshot {
		m := targetMetric{
			Container:   t.ContainerName,
			Target:      string(t.Key.Type) + "-" + t.Key.Instance,
			Status:      string(t.State.Status),
			Cron:        t.State.Cron,
			LastRun:     t.State.LastRun,
			LastSuccess: t.State.LastSuccess,
			LastError:   t.State.LastError,
		}
		if !t.State.NextRun.IsZero() {
			next := t.State.NextRun
			m.NextRun = &next
		}

		result.Targets = append(result.Targets, m)
	}

	writeJSON(w, logger, result)
}

func writeJSON(w http.ResponseWriter, logger logrus.FieldLogger, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	enc := json.NewEncoder(w)
	err := enc.Encode(v)
	if err != nil {
		logger.WithError(err).Error("Unable to encode response")
		w.WriteHeader(http.StatusInternalServerError)
	}
}
