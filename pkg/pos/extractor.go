package pos

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/posbridge/pkg/config"
	"github.com/ajitpratap0/posbridge/pkg/errors"
	jsonpkg "github.com/ajitpratap0/posbridge/pkg/json"
	"github.com/ajitpratap0/posbridge/pkg/logger"
	"github.com/ajitpratap0/posbridge/pkg/metrics"
	"github.com/ajitpratap0/posbridge/pkg/pool"
)

// Field names the POS API uses for modification timestamps. The cursor
// advances on updated_at, falling back to created_at for append-only
// entities.
const (
	modifiedField = "updated_at"
	createdField  = "created_at"
)

// Page is one atomic unit of extraction. Records preserve source order and
// are backed by pooled maps: callers must Release the page once every record
// has been copied or emitted.
type Page struct {
	Records []map[string]interface{}
	// Last is true when the source signalled no more pages
	Last bool
	// MaxModified is the largest modification timestamp seen in this page,
	// verbatim as the source emitted it so fractional seconds survive into
	// the cursor, empty when no record carries one
	MaxModified string
}

// Release returns the page's record maps to the pool
func (p *Page) Release() {
	for _, r := range p.Records {
		pool.PutRawRecord(r)
	}
	p.Records = nil
}

// Extractor performs paginated retrieval of one entity type at a time from
// the POS API. Pages within an entity are fetched strictly sequentially;
// a page is the atomic retry unit.
type Extractor struct {
	client   *Client
	pageSize int
	retry    *RetryPolicy
	logger   *zap.Logger
}

// NewExtractor creates an extractor bound to the given client
func NewExtractor(client *Client, cfg *config.Config) *Extractor {
	return &Extractor{
		client:   client,
		pageSize: cfg.Sync.PageSize,
		retry:    NewRetryPolicy(cfg.Reliability),
		logger:   logger.Get().With(zap.String("component", "extractor")),
	}
}

// Pages returns an iterator over the entity's pages. A non-empty since
// cursor requests only records modified at or after that value; an empty
// cursor performs a full extraction.
func (e *Extractor) Pages(entity, since string) *PageIterator {
	return &PageIterator{
		extractor: e,
		entity:    entity,
		since:     since,
	}
}

// Sample fetches up to n records of an entity for schema inference. Sampled
// records are plain maps, not pooled: the schema registry may hold them past
// the call.
func (e *Extractor) Sample(ctx context.Context, entity string, n int) ([]map[string]interface{}, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(n))
	query.Set("offset", "0")

	var raw []jsonpkg.RawMessage
	err := e.retry.Execute(ctx, func() error {
		raw = raw[:0]
		return e.client.getJSON(ctx, entityPath(entity), query, &raw)
	}, func(attempt int, err error) {
		metrics.PageRetries.WithLabelValues(entity).Inc()
		e.logger.Warn("retrying sample fetch",
			zap.String("entity", entity),
			zap.Int("attempt", attempt),
			zap.Error(err))
	})
	if err != nil {
		return nil, err
	}

	samples := make([]map[string]interface{}, 0, len(raw))
	for _, msg := range raw {
		m := make(map[string]interface{})
		if err := jsonpkg.Unmarshal(msg, &m); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "malformed sample record").WithDetail("entity", entity)
		}
		samples = append(samples, m)
	}
	return samples, nil
}

// PageIterator walks an entity's pages sequentially. It is not restartable
// mid-page; after an error the iterator is exhausted.
type PageIterator struct {
	extractor *Extractor
	entity    string
	since     string
	offset    int
	done      bool
}

// Next fetches the next page, returning (nil, nil) once the entity is
// exhausted. Transient failures are retried with backoff; exhausting the
// retry budget surfaces an extraction error for this entity only.
func (it *PageIterator) Next(ctx context.Context) (*Page, error) {
	if it.done {
		return nil, nil
	}

	e := it.extractor
	query := url.Values{}
	query.Set("limit", strconv.Itoa(e.pageSize))
	query.Set("offset", strconv.Itoa(it.offset))
	if it.since != "" {
		query.Set("since", it.since)
	}

	var raw []jsonpkg.RawMessage
	err := e.retry.Execute(ctx, func() error {
		raw = raw[:0]
		return e.client.getJSON(ctx, entityPath(it.entity), query, &raw)
	}, func(attempt int, err error) {
		metrics.PageRetries.WithLabelValues(it.entity).Inc()
		e.logger.Warn("retrying page fetch",
			zap.String("entity", it.entity),
			zap.Int("offset", it.offset),
			zap.Int("attempt", attempt),
			zap.Error(err))
	})
	if err != nil {
		it.done = true
		if errors.IsType(err, errors.ErrorTypeAuth) {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrorTypeExtraction, "page fetch failed").
			WithDetail("entity", it.entity).
			WithDetail("offset", it.offset)
	}

	page := &Page{Records: make([]map[string]interface{}, 0, len(raw))}
	var maxModified time.Time
	for _, msg := range raw {
		m := pool.GetRawRecord()
		if err := jsonpkg.Unmarshal(msg, &m); err != nil {
			pool.PutRawRecord(m)
			page.Release()
			it.done = true
			return nil, errors.Wrap(err, errors.ErrorTypeExtraction, "malformed record in page").
				WithDetail("entity", it.entity).
				WithDetail("offset", it.offset)
		}
		page.Records = append(page.Records, m)

		if ts, raw, ok := recordModified(m); ok && ts.After(maxModified) {
			maxModified = ts
			page.MaxModified = raw
		}
	}

	it.offset += len(page.Records)
	if len(page.Records) < e.pageSize {
		page.Last = true
		it.done = true
	}

	metrics.PagesFetched.WithLabelValues(it.entity).Inc()
	metrics.RecordsExtracted.WithLabelValues(it.entity).Add(float64(len(page.Records)))
	e.logger.Debug("fetched page",
		zap.String("entity", it.entity),
		zap.Int("records", len(page.Records)),
		zap.Bool("last", page.Last))

	return page, nil
}

// recordModified extracts a record's modification timestamp, returning both
// the parsed time and the source's own string form
func recordModified(m map[string]interface{}) (time.Time, string, bool) {
	for _, field := range [...]string{modifiedField, createdField} {
		s, ok := m[field].(string)
		if !ok {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts, s, true
		}
	}
	return time.Time{}, "", false
}

func entityPath(entity string) string {
	return "/v1/" + entity
}
