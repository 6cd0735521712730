// internal/pipeline/loader/loader.go
package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/models"
)

const StageName = "Loading"

var ErrNotFound = errors.New("HOTSPOT_NOT_FOUND")

// Query selects records collected on dates in [StartDate, EndDate] (YYYY-MM-DD).
type Query struct {
	StartDate string
	EndDate   string
	PageSize  int
	PageToken string
}

type Page struct {
	Records       []models.Hotspot
	NextPageToken string
}

// TableStore is the paginated hotspot table. Within one snapshot it must
// return records in a stable order.
type TableStore interface {
	ListRecords(ctx context.Context, q Query) (*Page, error)
	GetRecord(ctx context.Context, id string) (*models.Hotspot, error)
}

type Config struct {
	PageSize   int
	MaxRetries int
	RetryDelay time.Duration
	Location   *time.Location
}

type Loader struct {
	store  TableStore
	config *Config
	logger logger.Logger
	now    func() time.Time
}

func New(store TableStore, config *Config, log logger.Logger) *Loader {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	return &Loader{
		store:  store,
		config: config,
		logger: logger.ForComponent(log, "loader"),
		now:    time.Now,
	}
}

// LoadTopHotspots returns the first limit hotspots of date (today in the
// configured timezone when nil). limit <= 0 returns every record.
func (l *Loader) LoadTopHotspots(ctx context.Context, date *time.Time, limit int) ([]models.Hotspot, error) {
	day := l.now().In(l.config.Location)
	if date != nil {
		day = date.In(l.config.Location)
	}
	d := day.Format("2006-01-02")

	records, err := l.loadAll(ctx, d, d)
	if err != nil {
		return nil, err
	}

	SortHotspots(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	l.logger.Info("hotspots loaded", map[string]interface{}{
		"date":     d,
		"returned": len(records),
		"limit":    limit,
	})
	return records, nil
}

// LoadRange returns every hotspot collected between start and end inclusive.
func (l *Loader) LoadRange(ctx context.Context, start, end time.Time) ([]models.Hotspot, error) {
	s := start.In(l.config.Location).Format("2006-01-02")
	e := end.In(l.config.Location).Format("2006-01-02")
	if s > e {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("start date %s is after end date %s", s, e))
	}

	records, err := l.loadAll(ctx, s, e)
	if err != nil {
		return nil, err
	}
	SortHotspots(records)
	return records, nil
}

func (l *Loader) GetByID(ctx context.Context, id string) (*models.Hotspot, error) {
	var h *models.Hotspot
	err := l.withRetry(ctx, "get", func(ctx context.Context) error {
		var err error
		h, err = l.store.GetRecord(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperrors.NewHotspotNotFoundError(id)
	}
	l.checkRecord(h)
	return h, nil
}

func (l *Loader) loadAll(ctx context.Context, startDate, endDate string) ([]models.Hotspot, error) {
	var (
		out   []models.Hotspot
		seen  = make(map[string]bool)
		token string
		pages int
	)

	for {
		var page *Page
		q := Query{StartDate: startDate, EndDate: endDate, PageSize: l.config.PageSize, PageToken: token}
		err := l.withRetry(ctx, "list", func(ctx context.Context) error {
			var err error
			page, err = l.store.ListRecords(ctx, q)
			return err
		})
		if err != nil {
			return nil, err
		}
		pages++

		for i := range page.Records {
			rec := page.Records[i]
			if seen[rec.ID] {
				logger.Anomaly(l.logger, "id", rec.ID, "dropped duplicate", nil)
				continue
			}
			seen[rec.ID] = true
			l.checkRecord(&rec)
			out = append(out, rec)
		}

		if page.NextPageToken == "" || page.NextPageToken == token {
			break
		}
		token = page.NextPageToken
	}

	l.logger.Debug("table read complete", map[string]interface{}{
		"startDate": startDate,
		"endDate":   endDate,
		"pages":     pages,
		"records":   len(out),
	})
	return out, nil
}

// checkRecord logs records that break the table contract. Values are coerced
// only where downstream scoring needs a sane number.
func (l *Loader) checkRecord(h *models.Hotspot) {
	fields := map[string]interface{}{"hotspotId": h.ID}
	if _, err := models.ParseHotspotID(h.ID); err != nil {
		logger.Anomaly(l.logger, "id", h.ID, h.ID, fields)
	}
	if h.HotValue < 0 {
		logger.Anomaly(l.logger, "hotValue", h.HotValue, 0.0, fields)
		h.HotValue = 0
	}
	if h.Rank <= 0 {
		logger.Anomaly(l.logger, "rank", h.Rank, h.Rank, fields)
	}
}

func (l *Loader) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= l.config.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return apperrors.NewSourceUnavailableError(StageName, fmt.Errorf("%s: %w", op, ctx.Err()))
		}

		l.logger.Warn("table store call failed", map[string]interface{}{
			"op":      op,
			"attempt": attempt,
			"error":   lastErr.Error(),
		})

		if attempt < l.config.MaxRetries {
			backoff := l.config.RetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return apperrors.NewSourceUnavailableError(StageName, fmt.Errorf("%s: %w", op, ctx.Err()))
			}
		}
	}
	return apperrors.NewSourceUnavailableError(StageName, fmt.Errorf("%s after %d attempts: %w", op, l.config.MaxRetries, lastErr))
}

// SortHotspots orders by rank ascending, then hot value descending, then id.
func SortHotspots(hs []models.Hotspot) {
	sort.SliceStable(hs, func(i, j int) bool {
		a, b := hs[i], hs[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		if a.HotValue != b.HotValue {
			return a.HotValue > b.HotValue
		}
		return a.ID < b.ID
	})
}
