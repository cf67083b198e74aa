// Package connector implements the three-operation protocol surface of
// posbridge: test verifies credentials, schema reports the column layout of
// every entity the connector can emit, and sync extracts, enhances, and
// aggregates records. Each operation is a single stateless invocation; the
// only state carried between invocations is the per-entity cursor map the
// caller passes back in.
package connector

import (
	"github.com/ajitpratap0/posbridge/pkg/errors"
	"github.com/ajitpratap0/posbridge/pkg/schema"
)

// Credentials optionally override the configured API credentials for one
// invocation. Callers that manage secrets themselves pass them per request
// instead of baking them into the connector configuration.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// TestRequest is the payload of the test operation
type TestRequest struct {
	Credentials *Credentials `json:"credentials,omitempty"`
}

// TestResponse reports whether the credentials could acquire a token
type TestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SchemaRequest is the payload of the schema operation
type SchemaRequest struct {
	Credentials *Credentials `json:"credentials,omitempty"`
	// Entities restricts the operation to a subset of the configured
	// entities; empty means all of them.
	Entities []string `json:"entities,omitempty"`
}

// EntitySchemaResult is one entity's schema, or the error that prevented
// resolving it. A failed entity never fails the operation.
type EntitySchemaResult struct {
	PrimaryKey []string                    `json:"primary_key,omitempty"`
	Columns    map[string]schema.FieldType `json:"columns,omitempty"`
	Source     string                      `json:"source,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// SchemaResponse maps entity name to its schema result. Aggregate entities
// appear alongside source entities.
type SchemaResponse struct {
	Entities map[string]*EntitySchemaResult `json:"entities"`
}

// SyncRequest is the payload of the sync operation
type SyncRequest struct {
	Credentials *Credentials `json:"credentials,omitempty"`
	// Entities restricts the sync to a subset of the configured entities;
	// empty means all of them.
	Entities []string `json:"entities,omitempty"`
	// Cursors carries the per-entity cursor map returned by the previous
	// invocation. Unknown keys are passed through untouched.
	Cursors map[string]string `json:"cursors,omitempty"`
	// PageSize overrides the configured page size when positive
	PageSize int `json:"page_size,omitempty"`
	// TimeBudgetSeconds overrides the configured wall-clock budget when
	// positive
	TimeBudgetSeconds int `json:"time_budget_seconds,omitempty"`
}

// EntityState is the durable per-entity state handed back to the caller
type EntityState struct {
	Cursor string `json:"cursor,omitempty"`
}

// EntityStatus tags the outcome of one entity's sync
type EntityStatus string

const (
	// StatusOK means the entity synced without error, possibly partially
	// when the time budget ran out.
	StatusOK EntityStatus = "ok"
	// StatusSchemaFailed means the entity's schema could not be resolved
	StatusSchemaFailed EntityStatus = "schema_failed"
	// StatusExtractionFailed means extraction stopped on an error after the
	// schema resolved.
	StatusExtractionFailed EntityStatus = "extraction_failed"
)

// EntityResult is one entity's outcome within a sync invocation. Records is
// always present, empty when nothing matched the cursor. A non-empty Error
// means this entity failed; its cursor never moves past the last fully
// committed page.
type EntityResult struct {
	Status    EntityStatus             `json:"status"`
	Records   []map[string]interface{} `json:"records"`
	HasMore   bool                     `json:"has_more"`
	State     EntityState              `json:"state"`
	Error     string                   `json:"error,omitempty"`
	ErrorType errors.ErrorType         `json:"error_type,omitempty"`
}

// Failed reports whether the entity's sync ended in an error
func (r *EntityResult) Failed() bool {
	return r.Status != StatusOK
}

// SyncResponse is the outcome of one sync invocation. Cursors merges the
// request's cursor map with every cursor advanced during this invocation, so
// the caller can persist it wholesale.
type SyncResponse struct {
	Entities map[string]*EntityResult `json:"entities"`
	Cursors  map[string]string        `json:"cursors"`
}
