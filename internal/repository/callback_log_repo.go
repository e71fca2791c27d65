package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"coursepay/internal/models"
	"coursepay/internal/payment"
)

const (
	dispositionRejected = "rejected"
	dispositionReplayed = "replayed"
)

// CallbackLogRepository stores one audit row per terminal processor callback.
type CallbackLogRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewCallbackLogRepository(db *gorm.DB) *CallbackLogRepository {
	return &CallbackLogRepository{db: db, now: time.Now}
}

// Record implements payment.AuditRecorder.
func (r *CallbackLogRepository) Record(ctx context.Context, entry payment.AuditEntry) error {
	log := models.CallbackLog{
		ID:          uuid.NewString(),
		PaymentType: entry.PaymentType,
		Job:         entry.Job,
		Status:      entry.Status,
		RawBody:     entry.RawBody,
		Fields:      toJSONMap(entry.Fields),
		ReceivedAt:  r.now(),
	}
	if entry.OrderID != 0 {
		id := entry.OrderID
		log.OrderID = &id
	}
	if entry.RejectKind != 0 {
		log.Disposition = dispositionRejected
		log.RejectKind = entry.RejectKind.String()
	} else {
		log.Disposition = entry.Disposition.String()
	}
	return r.db.WithContext(ctx).Create(&log).Error
}

// RecordReplay stores a redelivery that was acknowledged from the replay cache
// without being reconciled again.
func (r *CallbackLogRepository) RecordReplay(ctx context.Context, fingerprint, rawBody string) error {
	log := models.CallbackLog{
		ID:          uuid.NewString(),
		Disposition: dispositionReplayed,
		RawBody:     rawBody,
		Fields:      datatypes.JSONMap{"fingerprint": fingerprint},
		ReceivedAt:  r.now(),
	}
	return r.db.WithContext(ctx).Create(&log).Error
}

// FindByOrder returns the callback history of an order, newest first.
func (r *CallbackLogRepository) FindByOrder(ctx context.Context, orderID int64) ([]models.CallbackLog, error) {
	var logs []models.CallbackLog
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("received_at DESC").Find(&logs).Error
	return logs, err
}

func toJSONMap(fields map[string]string) datatypes.JSONMap {
	m := make(datatypes.JSONMap, len(fields))
	for k, v := range fields {
		m[k] = v
	}
	return m
}

// DispositionCount is one row of a callback outcome summary.
type DispositionCount struct {
	Disposition string
	RejectKind  string
	Total       int64
}

// SummarizeSince counts callbacks received at or after since, grouped by outcome.
func (r *CallbackLogRepository) SummarizeSince(ctx context.Context, since time.Time) ([]DispositionCount, error) {
	var rows []DispositionCount
	err := r.db.WithContext(ctx).Model(&models.CallbackLog{}).
		Select("disposition, reject_kind, COUNT(*) AS total").
		Where("received_at >= ?", since).
		Group("disposition, reject_kind").
		Order("total DESC").
		Scan(&rows).Error
	return rows, err
}
