// Package posbridge is a POS-API-to-data-warehouse ingestion connector.
//
// The connector speaks a three-operation protocol:
//
//   - test: verify the configured credentials against the POS auth endpoint
//   - schema: report primary key and column layout for every entity the
//     connector emits, including derived columns and aggregate entities
//   - sync: extract entities page by page, enrich records with derived
//     fields, and recompute aggregate entities
//
// Sync is incremental: the caller persists the per-entity cursor map returned
// by each invocation and passes it back in. Entities fail independently; a
// failed entity reports its error and keeps its cursor at the last fully
// committed page while the remaining entities still sync. The wall-clock time
// budget is checked at page boundaries, so an invocation cut short reports
// partial progress with has_more instead of failing.
//
// Package layout:
//
//   - pkg/connector: protocol types and the operation handler
//   - pkg/pos: authenticated HTTP client, token manager, paginated extractor
//   - pkg/schema: static schema files, inference, and per-invocation registry
//   - pkg/enhance: pure derived-field computation per entity
//   - pkg/aggregate: order-independent grouping reducers
//   - pkg/config, pkg/logger, pkg/errors, pkg/metrics, pkg/pool, pkg/json:
//     shared infrastructure
package posbridge
