package schema

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/posbridge/pkg/errors"
	"github.com/ajitpratap0/posbridge/pkg/logger"
)

// Sampler fetches sample records for schema inference. The entity extractor
// implements this against the POS API.
type Sampler interface {
	Sample(ctx context.Context, entity string, n int) ([]map[string]interface{}, error)
}

// Registry resolves one schema per entity for the lifetime of a single
// invocation. Construct a fresh Registry per invocation; the cache is never
// shared across invocations.
type Registry struct {
	static     map[string]*EntitySchema
	sampler    Sampler
	sampleSize int
	logger     *zap.Logger

	mu    sync.Mutex
	cache map[string]*EntitySchema
}

// NewRegistry creates a registry backed by the predefined schemas in
// schemaDir and the given sampler for inference fallback.
func NewRegistry(schemaDir string, sampler Sampler, sampleSize int) (*Registry, error) {
	static, err := LoadStaticSchemas(schemaDir)
	if err != nil {
		return nil, err
	}

	return &Registry{
		static:     static,
		sampler:    sampler,
		sampleSize: sampleSize,
		logger:     logger.Get().With(zap.String("component", "schema_registry")),
		cache:      make(map[string]*EntitySchema),
	}, nil
}

// Resolve returns the schema for an entity: the predefined schema when one
// exists, otherwise a schema inferred from sample records. Results are
// cached for this invocation only.
func (r *Registry) Resolve(ctx context.Context, entity string) (*EntitySchema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[entity]; ok {
		return cached, nil
	}

	if static, ok := r.static[entity]; ok {
		r.logger.Debug("resolved static schema",
			zap.String("entity", entity),
			zap.Int("columns", len(static.Columns)))
		r.cache[entity] = static
		return static, nil
	}

	if r.sampler == nil {
		return nil, errors.Newf(errors.ErrorTypeSchema, "no predefined schema for %s and no sampler configured", entity)
	}

	samples, err := r.sampler.Sample(ctx, entity, r.sampleSize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to fetch samples for schema inference").WithDetail("entity", entity)
	}

	inferred, err := InferSchema(entity, samples)
	if err != nil {
		return nil, err
	}

	r.logger.Info("inferred schema from samples",
		zap.String("entity", entity),
		zap.Int("samples", len(samples)),
		zap.Int("columns", len(inferred.Columns)),
		zap.Strings("primary_keys", inferred.PrimaryKeys))

	r.cache[entity] = inferred
	return inferred, nil
}

// Static reports whether the entity has a predefined schema
func (r *Registry) Static(entity string) bool {
	_, ok := r.static[entity]
	return ok
}
