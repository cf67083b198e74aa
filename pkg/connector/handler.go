package connector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/posbridge/pkg/aggregate"
	"github.com/ajitpratap0/posbridge/pkg/config"
	"github.com/ajitpratap0/posbridge/pkg/enhance"
	"github.com/ajitpratap0/posbridge/pkg/errors"
	"github.com/ajitpratap0/posbridge/pkg/logger"
	"github.com/ajitpratap0/posbridge/pkg/metrics"
	"github.com/ajitpratap0/posbridge/pkg/pos"
	"github.com/ajitpratap0/posbridge/pkg/schema"
)

// Handler executes protocol operations against one connector configuration.
// The handler itself is reusable; every operation builds its own client,
// token manager, and schema registry so no auth or schema state leaks across
// invocations.
type Handler struct {
	cfg *config.Config
}

// NewHandler creates a handler for the given configuration
func NewHandler(cfg *config.Config) *Handler {
	return &Handler{cfg: cfg}
}

// opLog derives the operation logger from the context, picking up the
// invocation ID, operation, and entity stamped into it.
func opLog(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx).With(zap.String("component", "handler"))
}

// Test verifies the credentials by acquiring a token. It never returns an
// error: an unreachable or rejecting auth endpoint is the negative result.
func (h *Handler) Test(ctx context.Context, req *TestRequest) *TestResponse {
	ctx = context.WithValue(ctx, logger.OperationKey, "test")
	cfg := h.effectiveConfig(req.Credentials, nil, 0, 0)
	client := pos.NewClient(cfg)

	token, err := client.Tokens().Authenticate(ctx)
	if err != nil {
		opLog(ctx).Warn("connection test failed", zap.Error(err))
		return &TestResponse{Success: false, Message: err.Error()}
	}

	return &TestResponse{
		Success: true,
		Message: fmt.Sprintf("authenticated, data API at %s", token.BaseURL),
	}
}

// Schema resolves the schema of every configured entity plus the aggregate
// entities those entities feed. A single entity failing to resolve is
// reported inside its result; only authentication or configuration problems
// fail the whole operation.
func (h *Handler) Schema(ctx context.Context, req *SchemaRequest) (*SchemaResponse, error) {
	ctx = context.WithValue(ctx, logger.OperationKey, "schema")
	log := opLog(ctx)
	cfg := h.effectiveConfig(req.Credentials, req.Entities, 0, 0)

	client := pos.NewClient(cfg)
	if _, err := client.Tokens().Authenticate(ctx); err != nil {
		return nil, err
	}

	extractor := pos.NewExtractor(client, cfg)
	registry, err := schema.NewRegistry(cfg.Sync.SchemaDir, extractor, cfg.Sync.SampleSize)
	if err != nil {
		return nil, err
	}
	defs, err := aggregate.Resolve(cfg.Sync.Aggregates)
	if err != nil {
		return nil, err
	}
	defs = activeAggregates(cfg, defs)

	resp := &SchemaResponse{Entities: make(map[string]*EntitySchemaResult, len(cfg.Sync.Entities)+len(defs))}

	for _, entity := range cfg.Sync.Entities {
		sch, err := registry.Resolve(ctx, entity)
		if err != nil {
			log.Warn("schema resolution failed",
				zap.String("entity", entity),
				zap.Error(err))
			metrics.EntityErrors.WithLabelValues(entity, string(errors.TypeOf(err))).Inc()
			resp.Entities[entity] = &EntitySchemaResult{Error: err.Error()}
			continue
		}

		full := withDerived(entity, sch)
		resp.Entities[entity] = &EntitySchemaResult{
			PrimaryKey: full.PrimaryKeys,
			Columns:    full.Columns,
			Source:     string(full.Source),
		}
	}

	for _, def := range defs {
		s := def.Schema()
		resp.Entities[def.Name] = &EntitySchemaResult{
			PrimaryKey: s.PrimaryKeys,
			Columns:    s.Columns,
			Source:     string(s.Source),
		}
	}

	return resp, nil
}

// Sync extracts every requested entity, enhances and projects its records,
// and recomputes the configured aggregates. Entities fail independently; an
// entity error is recorded in its result and the remaining entities still
// run. Only the initial authentication and configuration errors fail the
// invocation as a whole.
func (h *Handler) Sync(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	ctx = context.WithValue(ctx, logger.OperationKey, "sync")
	log := opLog(ctx)
	coll := metrics.NewCollector("sync")
	cfg := h.effectiveConfig(req.Credentials, req.Entities, req.PageSize, req.TimeBudgetSeconds)

	client := pos.NewClient(cfg)
	if _, err := client.Tokens().Authenticate(ctx); err != nil {
		return nil, err
	}

	extractor := pos.NewExtractor(client, cfg)
	registry, err := schema.NewRegistry(cfg.Sync.SchemaDir, extractor, cfg.Sync.SampleSize)
	if err != nil {
		return nil, err
	}
	defs, err := aggregate.Resolve(cfg.Sync.Aggregates)
	if err != nil {
		return nil, err
	}
	defs = activeAggregates(cfg, defs)

	// Entities feeding an aggregate keep their enhanced records around for
	// the recompute pass.
	wantEnhanced := make(map[string]bool, len(defs))
	for _, def := range defs {
		wantEnhanced[def.Source] = true
	}

	deadline := time.Now().Add(cfg.Sync.TimeBudget)
	asOf := time.Now().UTC()

	resp := &SyncResponse{
		Entities: make(map[string]*EntityResult, len(cfg.Sync.Entities)+len(defs)),
		Cursors:  make(map[string]string, len(req.Cursors)+len(cfg.Sync.Entities)),
	}
	for entity, cursor := range req.Cursors {
		resp.Cursors[entity] = cursor
	}

	// Enhanced records per aggregate source entity, populated only when the
	// entity's extraction ran to completion this invocation.
	sources := make(map[string][]map[string]interface{})

	for _, entity := range cfg.Sync.Entities {
		result, enhanced, completed := h.syncEntity(ctx, entity, req.Cursors[entity], extractor, registry, deadline, asOf, wantEnhanced[entity])
		resp.Entities[entity] = result
		if result.State.Cursor != "" {
			resp.Cursors[entity] = result.State.Cursor
		}
		if completed && wantEnhanced[entity] {
			sources[entity] = enhanced
		}
		coll.Add("records_emitted", int64(len(result.Records)))
		if result.Failed() {
			coll.Add("entities_failed", 1)
		} else {
			coll.Add("entities_synced", 1)
		}
	}

	for _, def := range defs {
		records, ok := sources[def.Source]
		if !ok {
			// The source entity failed or was truncated by the budget;
			// a partial aggregate would under-report, so skip it.
			log.Info("skipping aggregate, source extraction incomplete",
				zap.String("aggregate", def.Name),
				zap.String("source", def.Source))
			coll.Add("aggregates_skipped", 1)
			continue
		}
		agg := h.computeAggregate(ctx, def, records)
		resp.Entities[def.Name] = agg
		coll.Add("aggregate_rows", int64(len(agg.Records)))
	}

	log.Info("sync finished",
		zap.Duration("duration", time.Since(coll.StartTime())),
		zap.Any("totals", coll.GetAll()))

	return resp, nil
}

// syncEntity runs one entity's extract-enhance-project loop. It returns the
// entity result, the enhanced records when keepEnhanced is set, and whether
// extraction ran to completion rather than stopping on error or budget.
func (h *Handler) syncEntity(
	ctx context.Context,
	entity, cursor string,
	extractor *pos.Extractor,
	registry *schema.Registry,
	deadline time.Time,
	asOf time.Time,
	keepEnhanced bool,
) (*EntityResult, []map[string]interface{}, bool) {
	ctx = context.WithValue(ctx, logger.EntityKey, entity)
	log := opLog(ctx)

	timer := metrics.NewTimer()
	result := &EntityResult{
		Records: make([]map[string]interface{}, 0),
		State:   EntityState{Cursor: cursor},
	}

	sch, err := registry.Resolve(ctx, entity)
	if err != nil {
		failEntity(log, entity, result, StatusSchemaFailed, err, timer)
		return result, nil, false
	}
	emitSchema := withDerived(entity, sch)

	it := extractor.Pages(entity, cursor)
	committed := cursor
	var kept []map[string]interface{}
	completed := false

	for {
		// Budget is checked at page boundaries only; a page in flight
		// always finishes.
		if !time.Now().Before(deadline) {
			result.HasMore = true
			log.Warn("time budget exhausted, stopping entity early",
				zap.Int("records", len(result.Records)))
			break
		}

		page, err := it.Next(ctx)
		if err != nil {
			result.State.Cursor = committed
			failEntity(log, entity, result, StatusExtractionFailed, err, timer)
			return result, nil, false
		}
		if page == nil {
			completed = true
			break
		}

		for _, raw := range page.Records {
			enhanced := enhance.Enhance(entity, raw, asOf)
			projected, perr := emitSchema.Project(enhanced)
			if perr != nil {
				log.Warn("dropping record without usable primary key",
					zap.Error(perr))
				continue
			}
			result.Records = append(result.Records, projected)
			if keepEnhanced {
				kept = append(kept, enhanced)
			}
		}
		metrics.RecordsEnhanced.WithLabelValues(entity).Add(float64(len(page.Records)))

		// The page is committed: its records are emitted, so the cursor
		// may advance past it.
		if page.MaxModified != "" && cursorAfter(page.MaxModified, committed) {
			committed = page.MaxModified
		}
		last := page.Last
		page.Release()
		if last {
			completed = true
			break
		}
	}

	result.Status = StatusOK
	result.State.Cursor = committed
	metrics.EntitySyncDuration.WithLabelValues(entity, "ok").Observe(timer.Stop().Seconds())
	log.Info("entity sync finished",
		zap.Int("records", len(result.Records)),
		zap.Bool("has_more", result.HasMore),
		zap.String("cursor", committed))

	return result, kept, completed
}

// computeAggregate recomputes one aggregate entity from its source's
// enhanced records. Aggregates carry no cursor: they are replaced wholesale
// every invocation.
func (h *Handler) computeAggregate(ctx context.Context, def aggregate.Definition, records []map[string]interface{}) *EntityResult {
	ctx = context.WithValue(ctx, logger.EntityKey, def.Name)
	log := opLog(ctx)

	timer := metrics.NewTimer()
	sch := def.Schema()

	rows := def.Aggregate(records)
	result := &EntityResult{
		Status:  StatusOK,
		Records: make([]map[string]interface{}, 0, len(rows)),
	}
	for _, row := range rows {
		projected, err := sch.Project(row)
		if err != nil {
			log.Warn("dropping aggregate row without group key",
				zap.Error(err))
			continue
		}
		result.Records = append(result.Records, projected)
	}

	metrics.EntitySyncDuration.WithLabelValues(def.Name, "ok").Observe(timer.Stop().Seconds())
	log.Info("aggregate computed",
		zap.String("source", def.Source),
		zap.Int("rows", len(result.Records)))
	return result
}

// failEntity records an entity-level failure on its result and metrics
func failEntity(log *zap.Logger, entity string, result *EntityResult, status EntityStatus, err error, timer *metrics.Timer) {
	errType := errors.TypeOf(err)
	result.Status = status
	result.Error = err.Error()
	result.ErrorType = errType
	metrics.EntityErrors.WithLabelValues(entity, string(errType)).Inc()
	metrics.EntitySyncDuration.WithLabelValues(entity, "failed").Observe(timer.Stop().Seconds())
	log.Error("entity sync failed",
		zap.String("error_type", string(errType)),
		zap.Error(err))
}

// activeAggregates keeps the aggregates whose source entity is part of this
// invocation's entity list. A request narrowed to a subset of entities
// cannot feed the other aggregates, so they are neither reported by the
// schema operation nor recomputed by sync.
func activeAggregates(cfg *config.Config, defs []aggregate.Definition) []aggregate.Definition {
	active := make([]aggregate.Definition, 0, len(defs))
	for _, def := range defs {
		if cfg.HasEntity(def.Source) {
			active = append(active, def)
		}
	}
	return active
}

// effectiveConfig clones the handler configuration and applies per-request
// overrides. The handler's own config is never mutated.
func (h *Handler) effectiveConfig(creds *Credentials, entities []string, pageSize, budgetSeconds int) *config.Config {
	cfg := *h.cfg
	if creds != nil {
		cfg.API.ClientID = creds.ClientID
		cfg.API.ClientSecret = creds.ClientSecret
	}
	if len(entities) > 0 {
		cfg.Sync.Entities = entities
	}
	if pageSize > 0 {
		cfg.Sync.PageSize = pageSize
	}
	if budgetSeconds > 0 {
		cfg.Sync.TimeBudget = time.Duration(budgetSeconds) * time.Second
	}
	return &cfg
}

// withDerived extends a resolved entity schema with the derived columns the
// enhancer adds, so projection keeps them. Source columns win on collision.
func withDerived(entity string, sch *schema.EntitySchema) *schema.EntitySchema {
	derived := enhance.DerivedColumns(entity)
	if len(derived) == 0 {
		return sch
	}

	columns := make(map[string]schema.FieldType, len(sch.Columns)+len(derived))
	for name, ft := range sch.Columns {
		columns[name] = ft
	}
	for name, ft := range derived {
		if _, exists := columns[name]; !exists {
			columns[name] = ft
		}
	}

	return &schema.EntitySchema{
		Entity:      sch.Entity,
		PrimaryKeys: sch.PrimaryKeys,
		Columns:     columns,
		Source:      sch.Source,
	}
}

// cursorAfter reports whether cursor a is strictly later than b. An empty or
// unparsable b never holds a back; an unparsable a never advances.
func cursorAfter(a, b string) bool {
	ta, err := time.Parse(time.RFC3339, a)
	if err != nil {
		return false
	}
	if b == "" {
		return true
	}
	tb, err := time.Parse(time.RFC3339, b)
	if err != nil {
		return true
	}
	return ta.After(tb)
}
