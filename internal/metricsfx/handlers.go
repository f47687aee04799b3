package metricsfx

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/baqup/pkg/http/handler"
	"github.com/yurykabanov/baqup/pkg/state"
)

func LatestBackupMetricHandler(logger *logrus.Logger, repository handler.BackupRepository) *handler.BackupMetricHandler {
	return handler.NewBackupMetricHandler(logger, repository)
}

func TargetMetricHandler(logger *logrus.Logger, store *state.Store) *handler.TargetMetricHandler {
	return handler.NewTargetMetricHandler(logger, store)
}

func RegisterMetricHandlers(router *mux.Router, backups *handler.BackupMetricHandler, targets *handler.TargetMetricHandler) {
	router.Handle("/metrics/backups", backups).Methods(http.MethodGet)
	router.Handle("/metrics/targets", targets).Methods(http.MethodGet)
}
