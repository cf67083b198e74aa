package aggregate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/posbridge/pkg/errors"
	"github.com/ajitpratap0/posbridge/pkg/schema"
)

func saleRecords() []map[string]interface{} {
	return []map[string]interface{}{
		{"sale_id": "s1", "customer_id": "c1", "total": 10.0, "sale_date": "2026-08-10T09:00:00Z"},
		{"sale_id": "s2", "customer_id": "c2", "total": 20.0, "sale_date": "2026-08-10T15:30:00Z"},
		{"sale_id": "s3", "customer_id": "c1", "total": 5.0, "sale_date": "2026-08-10T23:59:59Z"},
		{"sale_id": "s4", "customer_id": "c3", "total": 40.0, "sale_date": "2026-08-11T00:00:01Z"},
	}
}

func TestDailySalesGrouping(t *testing.T) {
	def := Builtin()["daily_sales"]
	rows := def.Aggregate(saleRecords())
	require.Len(t, rows, 2)

	day1 := rows[0]
	assert.Equal(t, "2026-08-10", day1["sale_day"])
	assert.InDelta(t, 35.0, day1["total_revenue"], 1e-9)
	assert.Equal(t, int64(3), day1["sale_count"])
	assert.Equal(t, int64(2), day1["distinct_customers"])

	day2 := rows[1]
	assert.Equal(t, "2026-08-11", day2["sale_day"])
	assert.InDelta(t, 40.0, day2["total_revenue"], 1e-9)
	assert.Equal(t, int64(1), day2["sale_count"])
	assert.Equal(t, int64(1), day2["distinct_customers"])
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	def := Builtin()["daily_sales"]
	records := saleRecords()
	want := def.Aggregate(records)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		shuffled := make([]map[string]interface{}, len(records))
		copy(shuffled, records)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		assert.Equal(t, want, def.Aggregate(shuffled), "permutation %d", i)
	}
}

func TestWarehouseStockMetrics(t *testing.T) {
	def := Builtin()["warehouse_stock"]
	rows := def.Aggregate([]map[string]interface{}{
		{"stock_id": "st1", "warehouse_id": "w1", "article_id": "a1", "quantity": 10.0},
		{"stock_id": "st2", "warehouse_id": "w1", "article_id": "a2", "quantity": 30.0},
		{"stock_id": "st3", "warehouse_id": "w1", "article_id": "a1", "quantity": 2.0},
		{"stock_id": "st4", "warehouse_id": "w2", "article_id": "a3", "quantity": 7.0},
	})
	require.Len(t, rows, 2)

	w1 := rows[0]
	assert.Equal(t, "w1", w1["warehouse_id"])
	assert.InDelta(t, 42.0, w1["total_quantity"], 1e-9)
	assert.Equal(t, int64(2), w1["distinct_articles"])
	assert.InDelta(t, 14.0, w1["avg_quantity"], 1e-9)

	w2 := rows[1]
	assert.Equal(t, "w2", w2["warehouse_id"])
	assert.InDelta(t, 7.0, w2["total_quantity"], 1e-9)
}

func TestAggregateMissingMetricFieldsDegradeToNull(t *testing.T) {
	def := Builtin()["daily_sales"]
	rows := def.Aggregate([]map[string]interface{}{
		{"sale_id": "s1", "sale_date": "2026-08-10T09:00:00Z"},
		{"sale_id": "s2", "sale_date": "2026-08-10T10:00:00Z"},
	})
	require.Len(t, rows, 1)

	// Count still counts records; sum over no values is null
	assert.Equal(t, int64(2), rows[0]["sale_count"])
	assert.Nil(t, rows[0]["total_revenue"])
	assert.Equal(t, int64(0), rows[0]["distinct_customers"])
}

func TestAggregateEmptyInput(t *testing.T) {
	def := Builtin()["daily_sales"]
	assert.Empty(t, def.Aggregate(nil))
}

func TestAggregateNullDimensionGroupsTogether(t *testing.T) {
	def := Builtin()["warehouse_stock"]
	rows := def.Aggregate([]map[string]interface{}{
		{"stock_id": "st1", "quantity": 1.0},
		{"stock_id": "st2", "quantity": 2.0},
	})
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0]["warehouse_id"])
	assert.InDelta(t, 3.0, rows[0]["total_quantity"], 1e-9)
}

func TestResolve(t *testing.T) {
	defs, err := Resolve([]string{"daily_sales", "warehouse_stock"})
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "sale", defs[0].Source)
	assert.Equal(t, "stock", defs[1].Source)

	_, err = Resolve([]string{"weekly_sales"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDefinitionSchema(t *testing.T) {
	def := Builtin()["daily_sales"]
	s := def.Schema()
	require.NoError(t, s.Validate())

	assert.Equal(t, []string{"sale_day"}, s.PrimaryKeys)
	assert.Equal(t, schema.FieldTypeFloat, s.Columns["total_revenue"])
	assert.Equal(t, schema.FieldTypeInteger, s.Columns["sale_count"])
	assert.Equal(t, schema.FieldTypeInteger, s.Columns["distinct_customers"])
}
