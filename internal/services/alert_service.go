// internal/services/alert_service.go
package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/remix-engine/internal/config"
	"github.com/javajoker/remix-engine/internal/models"
)

const TypeDeadLetterAlert = "royalty:dead_letter"

// TaskEnqueuer is the part of *asynq.Client the alert service needs.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type DeadLetterAlertPayload struct {
	DeadLetterID uuid.UUID             `json:"dead_letter_id"`
	UsageEventID uuid.UUID             `json:"usage_event_id"`
	Consumer     string                `json:"consumer"`
	ErrorKind    models.DeadLetterKind `json:"error_kind"`
	Reason       string                `json:"reason"`
	CreatedAt    time.Time             `json:"created_at"`
}

// AlertService raises operator alerts. Every alert is logged; when a queue is
// configured it is also enqueued for the on-call worker.
type AlertService struct {
	queue TaskEnqueuer
}

func NewAlertService(queue TaskEnqueuer) *AlertService {
	return &AlertService{queue: queue}
}

func NewAsynqClient(cfg config.RedisConfig) *asynq.Client {
	return asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func (s *AlertService) DeadLetter(dl *models.DeadLetter) {
	logrus.WithFields(logrus.Fields{
		"dead_letter_id": dl.ID,
		"usage_event_id": dl.UsageEventID,
		"consumer":       dl.Consumer,
		"error_kind":     dl.ErrorKind,
		"reason":         dl.Reason,
	}).Error("Usage event dead-lettered")

	if s.queue == nil {
		return
	}

	data, err := json.Marshal(DeadLetterAlertPayload{
		DeadLetterID: dl.ID,
		UsageEventID: dl.UsageEventID,
		Consumer:     dl.Consumer,
		ErrorKind:    dl.ErrorKind,
		Reason:       dl.Reason,
		CreatedAt:    dl.CreatedAt,
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal dead letter alert")
		return
	}

	task := asynq.NewTask(TypeDeadLetterAlert, data)
	if _, err := s.queue.Enqueue(task, asynq.MaxRetry(5), asynq.Timeout(30*time.Second), asynq.TaskID(dl.ID.String())); err != nil {
		logrus.WithError(err).WithField("dead_letter_id", dl.ID).Warn("Failed to enqueue dead letter alert")
	}
}
