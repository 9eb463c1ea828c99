package journal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/venloapp/questlock/server/game/engine"
	"github.com/venloapp/questlock/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	chanCap       = 1024
	batchSize     = 100
	flushInterval = 2 * time.Second
)

// Service writes quest transition records asynchronously in batches. It is
// the engine's Journal: Record never blocks, and a full queue drops entries
// rather than stalling a lifecycle transition.
type Service struct {
	db     *gorm.DB
	ch     chan *model.TransitionLog
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// New creates a Service and starts its background writer.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.TransitionLog, chanCap),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Record enqueues an engine transition for async write.
func (svc *Service) Record(entry engine.TransitionEntry) {
	svc.enqueue(&model.TransitionLog{
		CharID:    entry.CharID,
		QuestID:   entry.QuestID,
		Action:    entry.Action,
		FromPhase: string(entry.FromPhase),
		ToPhase:   string(entry.ToPhase),
		SignalMs:  entry.SignalMs,
		Error:     entry.Error,
	})
}

// RecordAdmin journals an operator action against a character, with the
// request trace ID and an arbitrary detail payload.
func (svc *Service) RecordAdmin(traceID string, charID int64, action string, detail interface{}) {
	detailJSON, _ := json.Marshal(detail)
	svc.enqueue(&model.TransitionLog{
		TraceID: traceID,
		CharID:  charID,
		Action:  action,
		Detail:  datatypes.JSON(detailJSON),
	})
}

func (svc *Service) enqueue(record *model.TransitionLog) {
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("journal queue full, dropping entry",
			zap.String("action", record.Action),
			zap.Int64("char_id", record.CharID))
	}
}

// Recent returns the newest journal rows for a character.
func (svc *Service) Recent(ctx context.Context, charID int64, limit int) ([]model.TransitionLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []model.TransitionLog
	err := svc.db.WithContext(ctx).
		Where("char_id = ?", charID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Stop flushes queued entries and shuts the writer down. Blocks until the
// writer goroutine has finished. Idempotent.
func (svc *Service) Stop(_ context.Context) {
	select {
	case <-svc.stopCh:
	default:
		close(svc.stopCh)
	}
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*model.TransitionLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.Create(&batch).Error; err != nil {
			svc.logger.Error("journal batch write failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case record := <-svc.ch:
			batch = append(batch, record)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case record := <-svc.ch:
					batch = append(batch, record)
				default:
					flush()
					return
				}
			}
		}
	}
}
