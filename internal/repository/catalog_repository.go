// Package repository persists registered books and recognition logs.
package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/bookcover/internal/logging"
)

// BookRecord is a registered book cover as stored in the database. The
// descriptor set is serialized; the in-memory catalog is hydrated from these
// rows at startup.
type BookRecord struct {
	ID          uint      `gorm:"primaryKey"`
	BookID      string    `gorm:"column:book_id;uniqueIndex;size:64"`
	Name        string    `gorm:"column:name;size:256"`
	ImageSHA1   string    `gorm:"column:image_sha1;size:40"`
	Descriptors []byte    `gorm:"column:descriptors;type:bytea"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (BookRecord) TableName() string {
	return "book_records"
}

// RecognitionLog is a persisted recognition request and its outcome.
type RecognitionLog struct {
	ID            uint      `gorm:"primaryKey"`
	RequestID     string    `gorm:"column:request_id;uniqueIndex;size:64"`
	MatchedBookID string    `gorm:"column:matched_book_id;size:64"`
	Score         float64   `gorm:"column:score"`
	Matched       bool      `gorm:"column:matched"`
	SHA1Hash      string    `gorm:"column:sha1_hash;index;size:40"`
	Details       string    `gorm:"column:details;type:text"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (RecognitionLog) TableName() string {
	return "recognition_logs"
}

// MetricsAggregation holds the raw aggregates over recognition logs.
type MetricsAggregation struct {
	TotalCount   int64
	MatchCount   int64
	AverageScore float64
}

// CatalogRepository provides persistence APIs for books and recognition
// logs. Write operations retry transient database errors with exponential
// backoff.
type CatalogRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewCatalogRepository creates a new repository instance.
func NewCatalogRepository(db *gorm.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:             db,
		logger:         logger.Named("catalog_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *CatalogRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&BookRecord{}, &RecognitionLog{})
}

// SaveBook persists a registered book.
func (r *CatalogRepository) SaveBook(ctx context.Context, record *BookRecord) error {
	return r.executeWithRetry(ctx, "repository.save_book", record.BookID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// DeleteBook removes a registered book by its book id.
func (r *CatalogRepository) DeleteBook(ctx context.Context, bookID string) error {
	return r.executeWithRetry(ctx, "repository.delete_book", bookID, func() error {
		return r.db.WithContext(ctx).Where("book_id = ?", bookID).Delete(&BookRecord{}).Error
	})
}

// ListBooks returns all registered books in registration order.
func (r *CatalogRepository) ListBooks(ctx context.Context) ([]*BookRecord, error) {
	var records []*BookRecord
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// SaveLog persists a recognition log entry.
func (r *CatalogRepository) SaveLog(ctx context.Context, log *RecognitionLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindLogByRequestID retrieves a recognition log by request id.
func (r *CatalogRepository) FindLogByRequestID(ctx context.Context, requestID string) (*RecognitionLog, error) {
	var log RecognitionLog
	if err := r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes totals over all recognition logs.
func (r *CatalogRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.db.WithContext(ctx).
		Model(&RecognitionLog{}).
		Select("COUNT(*) AS total_count, COALESCE(SUM(CASE WHEN matched THEN 1 ELSE 0 END), 0) AS match_count, COALESCE(AVG(score), 0) AS average_score").
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// executeWithRetry runs fn, retrying transient (timeout/temporary) failures
// with exponential backoff. Permanent failures return immediately, wrapped
// with operation metadata.
func (r *CatalogRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
