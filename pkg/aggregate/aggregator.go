// Package aggregate produces derived summary entities by grouping and
// reducing another entity's enhanced records. All reducers are
// order-independent, so permuting the input records never changes the
// output; rows are emitted sorted by group key to keep output deterministic.
//
// Aggregates are recomputed in full from the records extracted in the
// current invocation; there is no incremental merge with previously emitted
// aggregate state.
package aggregate

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/posbridge/pkg/errors"
	"github.com/ajitpratap0/posbridge/pkg/schema"
)

// MetricKind selects a reducer
type MetricKind string

const (
	KindSum           MetricKind = "sum"
	KindAvg           MetricKind = "avg"
	KindCount         MetricKind = "count"
	KindCountDistinct MetricKind = "count_distinct"
)

// Metric applies one reducer over a grouped record set
type Metric struct {
	// Name is the output column
	Name string
	// Field is the input column; unused for KindCount
	Field string
	Kind  MetricKind
}

// Dimension is one grouping column
type Dimension struct {
	// Name is the output column
	Name string
	// Field is the input column
	Field string
	// TruncateDay reduces an RFC3339 timestamp to its calendar day
	TruncateDay bool
}

// Definition describes one aggregate entity: its source entity, grouping
// dimensions, and metric reducers. The dimension columns form the aggregate
// entity's primary key.
type Definition struct {
	Name    string
	Source  string
	GroupBy []Dimension
	Metrics []Metric
}

// Builtin returns the aggregate definitions shipped with the connector,
// keyed by aggregate name.
func Builtin() map[string]Definition {
	return map[string]Definition{
		"daily_sales": {
			Name:   "daily_sales",
			Source: "sale",
			GroupBy: []Dimension{
				{Name: "sale_day", Field: "sale_date", TruncateDay: true},
			},
			Metrics: []Metric{
				{Name: "total_revenue", Field: "total", Kind: KindSum},
				{Name: "sale_count", Kind: KindCount},
				{Name: "distinct_customers", Field: "customer_id", Kind: KindCountDistinct},
			},
		},
		"warehouse_stock": {
			Name:   "warehouse_stock",
			Source: "stock",
			GroupBy: []Dimension{
				{Name: "warehouse_id", Field: "warehouse_id"},
			},
			Metrics: []Metric{
				{Name: "total_quantity", Field: "quantity", Kind: KindSum},
				{Name: "distinct_articles", Field: "article_id", Kind: KindCountDistinct},
				{Name: "avg_quantity", Field: "quantity", Kind: KindAvg},
			},
		},
	}
}

// Resolve looks up the named definitions among the built-ins
func Resolve(names []string) ([]Definition, error) {
	builtin := Builtin()
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		def, ok := builtin[name]
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeConfig, "unknown aggregate definition %q", name)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// group accumulates reducer state for one group key
type group struct {
	dims     map[string]interface{}
	sums     []float64
	sumSeen  []bool
	counts   []int64
	distinct []map[string]struct{}
}

// Aggregate folds the records into one row per group. Records missing a
// metric field simply don't contribute to that metric. The fold is a pure
// function of the record multiset.
func (d Definition) Aggregate(records []map[string]interface{}) []map[string]interface{} {
	groups := make(map[string]*group)

	for _, record := range records {
		key, dims := d.groupKey(record)
		g, ok := groups[key]
		if !ok {
			g = &group{
				dims:     dims,
				sums:     make([]float64, len(d.Metrics)),
				sumSeen:  make([]bool, len(d.Metrics)),
				counts:   make([]int64, len(d.Metrics)),
				distinct: make([]map[string]struct{}, len(d.Metrics)),
			}
			for i, m := range d.Metrics {
				if m.Kind == KindCountDistinct {
					g.distinct[i] = make(map[string]struct{})
				}
			}
			groups[key] = g
		}

		for i, m := range d.Metrics {
			switch m.Kind {
			case KindCount:
				g.counts[i]++
			case KindSum, KindAvg:
				if v, ok := numberOf(record[m.Field]); ok {
					g.sums[i] += v
					g.counts[i]++
					g.sumSeen[i] = true
				}
			case KindCountDistinct:
				if v, ok := scalarKey(record[m.Field]); ok {
					g.distinct[i][v] = struct{}{}
				}
			}
		}
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]map[string]interface{}, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		row := make(map[string]interface{}, len(d.GroupBy)+len(d.Metrics))
		for name, value := range g.dims {
			row[name] = value
		}
		for i, m := range d.Metrics {
			switch m.Kind {
			case KindCount:
				row[m.Name] = g.counts[i]
			case KindSum:
				if g.sumSeen[i] {
					row[m.Name] = g.sums[i]
				} else {
					row[m.Name] = nil
				}
			case KindAvg:
				if g.counts[i] > 0 {
					row[m.Name] = g.sums[i] / float64(g.counts[i])
				} else {
					row[m.Name] = nil
				}
			case KindCountDistinct:
				row[m.Name] = int64(len(g.distinct[i]))
			}
		}
		rows = append(rows, row)
	}

	return rows
}

// PrimaryKeys returns the aggregate entity's primary key columns
func (d Definition) PrimaryKeys() []string {
	keys := make([]string, len(d.GroupBy))
	for i, dim := range d.GroupBy {
		keys[i] = dim.Name
	}
	return keys
}

// Schema returns the aggregate entity's schema. Dimension columns are the
// primary key; metric columns are typed by their reducer.
func (d Definition) Schema() *schema.EntitySchema {
	columns := make(map[string]schema.FieldType, len(d.GroupBy)+len(d.Metrics))
	for _, dim := range d.GroupBy {
		columns[dim.Name] = schema.FieldTypeString
	}
	for _, m := range d.Metrics {
		switch m.Kind {
		case KindSum, KindAvg:
			columns[m.Name] = schema.FieldTypeFloat
		case KindCount, KindCountDistinct:
			columns[m.Name] = schema.FieldTypeInteger
		}
	}
	return &schema.EntitySchema{
		Entity:      d.Name,
		PrimaryKeys: d.PrimaryKeys(),
		Columns:     columns,
		Source:      schema.SourceStatic,
	}
}

// groupKey computes the composite group key and the dimension output values
func (d Definition) groupKey(record map[string]interface{}) (string, map[string]interface{}) {
	dims := make(map[string]interface{}, len(d.GroupBy))
	parts := make([]string, len(d.GroupBy))

	for i, dim := range d.GroupBy {
		value := record[dim.Field]
		if dim.TruncateDay {
			value = truncateDay(value)
		}
		dims[dim.Name] = value
		if s, ok := scalarKey(value); ok {
			parts[i] = s
		}
	}

	return strings.Join(parts, "\x1f"), dims
}

// truncateDay reduces an RFC3339 timestamp to its calendar day
func truncateDay(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return ts.UTC().Format("2006-01-02")
}

// scalarKey renders a scalar value as a stable string key
func scalarKey(v interface{}) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int:
		return strconv.Itoa(s), true
	default:
		return "", false
	}
}

// numberOf extracts a numeric value from a decoded JSON field
func numberOf(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
