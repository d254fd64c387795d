package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/bookcover/internal/catalog"
	"github.com/example/bookcover/internal/descriptor"
	"github.com/example/bookcover/internal/extractor"
	"github.com/example/bookcover/internal/logging"
	"github.com/example/bookcover/internal/match"
	"github.com/example/bookcover/internal/recognize"
	"github.com/example/bookcover/internal/repository"
)

// ErrNoFeatures is returned when registration is attempted with an image
// that yields no descriptors.
var ErrNoFeatures = errors.New("usecase: no features extracted from image")

// CatalogRepository defines the persistence operations needed by the use
// case.
type CatalogRepository interface {
	SaveBook(ctx context.Context, record *repository.BookRecord) error
	DeleteBook(ctx context.Context, bookID string) error
	ListBooks(ctx context.Context) ([]*repository.BookRecord, error)
	SaveLog(ctx context.Context, log *repository.RecognitionLog) error
	FindLogByRequestID(ctx context.Context, requestID string) (*repository.RecognitionLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// Config carries the tunable matching parameters. Zero values select the
// documented defaults.
type Config struct {
	// Ratio is the ratio-test threshold, in (0,1).
	Ratio float64

	// Threshold is the acceptance threshold applied to the best score, in
	// [0,1].
	Threshold float64

	// Workers bounds concurrent per-entry evaluations during a scan.
	Workers int
}

// RecognitionUseCase encapsulates business logic for registering book covers
// and recognizing query images against them.
type RecognitionUseCase struct {
	repo           CatalogRepository
	cache          Cache
	extractor      extractor.Extractor
	catalog        *catalog.Catalog
	scanner        *recognize.Scanner
	threshold      float64
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type cachedRecognition struct {
	RequestID    string                     `json:"request_id"`
	BookID       string                     `json:"book_id,omitempty"`
	Name         string                     `json:"name,omitempty"`
	Score        float64                    `json:"score"`
	Matched      bool                       `json:"matched"`
	NoCandidates bool                       `json:"no_candidates,omitempty"`
	Breakdown    []recognize.CandidateScore `json:"breakdown,omitempty"`
	Hash         string                     `json:"sha1_hash"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// NewRecognitionUseCase constructs a new use case instance. Invalid matching
// parameters are rejected here, before any recognition work can begin.
func NewRecognitionUseCase(repo CatalogRepository, cache Cache, ext extractor.Extractor, logger *zap.Logger, cfg Config) (*RecognitionUseCase, error) {
	ratio := cfg.Ratio
	if ratio == 0 {
		ratio = match.DefaultRatio
	}
	if ratio <= 0 || ratio >= 1 {
		return nil, match.ErrInvalidRatio
	}
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = recognize.DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, recognize.ErrInvalidThreshold
	}

	return &RecognitionUseCase{
		repo:      repo,
		cache:     cache,
		extractor: ext,
		catalog:   catalog.New(),
		scanner: &recognize.Scanner{
			Matcher: &match.Matcher{Ratio: ratio},
			Workers: cfg.Workers,
		},
		threshold:      threshold,
		logger:         logger.Named("recognition_usecase"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}, nil
}

// LoadCatalog hydrates the in-memory catalog from persisted book records, in
// registration order. Records with undecodable descriptor sets are skipped
// with a warning rather than failing startup.
func (uc *RecognitionUseCase) LoadCatalog(ctx context.Context) error {
	records, err := uc.repo.ListBooks(ctx)
	if err != nil {
		return logging.NewOperationError("usecase.load_catalog", "", err)
	}
	for _, record := range records {
		set, err := descriptor.Unmarshal(record.Descriptors)
		if err != nil {
			uc.logger.Warn("skipping book with undecodable descriptors",
				zap.String("book_id", record.BookID), zap.Error(err))
			continue
		}
		entry := &catalog.Entry{
			BookID:      record.BookID,
			Name:        record.Name,
			ImageSHA1:   record.ImageSHA1,
			Descriptors: set,
		}
		if err := uc.catalog.Add(entry); err != nil {
			uc.logger.Warn("skipping duplicate book record",
				zap.String("book_id", record.BookID), zap.Error(err))
		}
	}
	uc.logger.Info("catalog loaded", zap.Int("books", uc.catalog.Len()))
	return nil
}

// AddBook extracts descriptors from the cover image and registers the book.
// Registration fails if the id is already taken or the image yields no
// features; the catalog is left unchanged in both cases.
func (uc *RecognitionUseCase) AddBook(ctx context.Context, bookID, name string, image []byte) (*catalog.Entry, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.add_book", bookID)

	set, err := uc.extractor.Extract(ctx, image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.extract", bookID, err)
		opLogger.Error("feature extraction failed", zap.Error(wrapped))
		return nil, wrapped
	}
	if len(set) == 0 {
		return nil, ErrNoFeatures
	}

	hash := sha1.Sum(image)
	entry := &catalog.Entry{
		BookID:      bookID,
		Name:        name,
		ImageSHA1:   hex.EncodeToString(hash[:]),
		Descriptors: set,
	}
	if err := uc.catalog.Add(entry); err != nil {
		return nil, err
	}

	serialized, err := entry.Descriptors.Marshal()
	if err != nil {
		_ = uc.catalog.Remove(bookID)
		return nil, logging.NewOperationError("usecase.marshal_descriptors", bookID, err)
	}
	record := &repository.BookRecord{
		BookID:      entry.BookID,
		Name:        entry.Name,
		ImageSHA1:   entry.ImageSHA1,
		Descriptors: serialized,
		CreatedAt:   time.Now().UTC(),
	}
	if err := uc.repo.SaveBook(ctx, record); err != nil {
		_ = uc.catalog.Remove(bookID)
		wrapped := logging.NewOperationError("usecase.save_book", bookID, err)
		opLogger.Error("failed to persist book", zap.Error(wrapped))
		return nil, wrapped
	}

	opLogger.Info("book registered",
		zap.String("name", name), zap.Int("descriptors", len(set)))
	return entry, nil
}

// RemoveBook deletes a registered book from the catalog and the database.
func (uc *RecognitionUseCase) RemoveBook(ctx context.Context, bookID string) error {
	if err := uc.catalog.Remove(bookID); err != nil {
		return err
	}
	if err := uc.repo.DeleteBook(ctx, bookID); err != nil {
		return logging.NewOperationError("usecase.delete_book", bookID, err)
	}
	logging.WithOperation(uc.logger, "usecase.remove_book", bookID).Info("book removed")
	return nil
}

// ListBooks returns the registered entries in registration order.
func (uc *RecognitionUseCase) ListBooks() []*catalog.Entry {
	return uc.catalog.Snapshot()
}

// Recognize matches a query image against every registered book and applies
// the acceptance threshold. Identical images short-circuit through the cache
// keyed by content hash.
func (uc *RecognitionUseCase) Recognize(ctx context.Context, image []byte) (string, *recognize.Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.recognize", requestID)

	hash := sha1.Sum(image)
	hashHex := hex.EncodeToString(hash[:])

	if cached, ok := uc.lookupByHash(ctx, requestID, hashHex); ok {
		opLogger.Info("recognition served from cache",
			zap.String("cached_request_id", cached.RequestID))
		return cached.RequestID, uc.resultFromCache(cached), nil
	}

	query, err := uc.extractor.Extract(ctx, image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.extract", requestID, err)
		opLogger.Error("feature extraction failed", zap.Error(wrapped))
		return "", nil, wrapped
	}

	entries := uc.catalog.Snapshot()
	summary, err := uc.scanner.Scan(ctx, query, entries)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.scan", requestID, err)
		opLogger.Error("catalog scan failed", zap.Error(wrapped))
		return "", nil, wrapped
	}
	result, err := recognize.Decide(summary, uc.threshold)
	if err != nil {
		return "", nil, logging.NewOperationError("usecase.decide", requestID, err)
	}

	log := &repository.RecognitionLog{
		RequestID: requestID,
		Score:     result.Score,
		Matched:   result.Matched,
		SHA1Hash:  hashHex,
		Details:   fmt.Sprintf("candidates:%d features:%d", len(entries), len(query)),
		CreatedAt: time.Now().UTC(),
	}
	if result.Matched {
		log.MatchedBookID = result.Entry.BookID
	}
	if result.NoCandidates {
		log.Details = "no candidates: catalog is empty"
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist recognition log", zap.Error(wrapped))
		return "", nil, wrapped
	}

	uc.cacheOutcome(ctx, requestID, hashHex, &result)

	opLogger.Info("recognition completed",
		zap.Bool("matched", result.Matched),
		zap.Float64("score", result.Score),
		zap.Int("candidates", len(entries)))
	return requestID, &result, nil
}

// GetResult retrieves a recognition outcome from the cache, falling back to
// persistence.
func (uc *RecognitionUseCase) GetResult(ctx context.Context, requestID string) (*repository.RecognitionLog, error) {
	cacheKey := fmt.Sprintf("recognition:req:%s", requestID)
	if cached, err := uc.withRedisGet(ctx, requestID, "cache.get.result", cacheKey); err == nil {
		var payload cachedRecognition
		if err := json.Unmarshal([]byte(cached), &payload); err != nil {
			logging.WithOperation(uc.logger, "usecase.get_result", requestID).
				Warn("failed to decode cached result", zap.Error(err))
		} else {
			return &repository.RecognitionLog{
				RequestID:     requestID,
				MatchedBookID: payload.BookID,
				Score:         payload.Score,
				Matched:       payload.Matched,
				SHA1Hash:      payload.Hash,
				CreatedAt:     payload.CreatedAt,
			}, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logging.WithOperation(uc.logger, "usecase.get_result", requestID).
			Warn("failed to read cache", zap.Error(err))
	}

	return uc.repo.FindLogByRequestID(ctx, requestID)
}

// lookupByHash checks whether an identical image was recognized recently.
// Cache failures degrade to a full scan, never to an error.
func (uc *RecognitionUseCase) lookupByHash(ctx context.Context, requestID, hashHex string) (*cachedRecognition, bool) {
	cacheKey := fmt.Sprintf("recognition:sha1:%s", hashHex)
	cached, err := uc.withRedisGet(ctx, requestID, "cache.get.by_hash", cacheKey)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.WithOperation(uc.logger, "usecase.recognize", requestID).
				Warn("failed to read hash cache", zap.Error(err))
		}
		return nil, false
	}
	var payload cachedRecognition
	if err := json.Unmarshal([]byte(cached), &payload); err != nil {
		return nil, false
	}
	if payload.Matched {
		// The matched book may have been removed since the outcome was
		// cached; a stale hit must not resurrect it.
		if _, err := uc.catalog.Get(payload.BookID); err != nil {
			return nil, false
		}
	}
	return &payload, true
}

func (uc *RecognitionUseCase) resultFromCache(cached *cachedRecognition) *recognize.Result {
	result := &recognize.Result{
		Matched:      cached.Matched,
		NoCandidates: cached.NoCandidates,
		Score:        cached.Score,
		Breakdown:    cached.Breakdown,
	}
	if cached.Matched {
		if entry, err := uc.catalog.Get(cached.BookID); err == nil {
			result.Entry = entry
		}
	}
	return result
}

// cacheOutcome stores the outcome under both the request id and the image
// hash. Failures are logged and swallowed; the result is already persisted.
func (uc *RecognitionUseCase) cacheOutcome(ctx context.Context, requestID, hashHex string, result *recognize.Result) {
	cached := cachedRecognition{
		RequestID:    requestID,
		Score:        result.Score,
		Matched:      result.Matched,
		NoCandidates: result.NoCandidates,
		Breakdown:    result.Breakdown,
		Hash:         hashHex,
		CreatedAt:    time.Now().UTC(),
	}
	if result.Matched {
		cached.BookID = result.Entry.BookID
		cached.Name = result.Entry.Name
	}
	serialized, err := json.Marshal(cached)
	if err != nil {
		uc.logger.Error("failed to serialize recognition outcome", zap.Error(err))
		return
	}

	for key, ttl := range map[string]time.Duration{
		fmt.Sprintf("recognition:req:%s", requestID): 5 * time.Minute,
		fmt.Sprintf("recognition:sha1:%s", hashHex):  5 * time.Minute,
	} {
		key, ttl := key, ttl
		if err := uc.withRedisRetry(ctx, requestID, "cache.set.result", func() error {
			return uc.cache.Set(ctx, key, string(serialized), ttl)
		}); err != nil {
			logging.WithOperation(uc.logger, "usecase.recognize", requestID).
				Warn("failed to cache recognition outcome", zap.Error(err))
		}
	}
}

func (uc *RecognitionUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		err := fn()
		return logging.NewOperationError(operation, requestID, err)
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, requestID, err)
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *RecognitionUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
