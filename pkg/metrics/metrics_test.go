package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorAccumulates(t *testing.T) {
	c := NewCollector("sync")

	c.Add("records_emitted", 3)
	c.Add("records_emitted", 2)
	c.Add("entities_failed", 1)
	c.Set("page_size", 500)

	totals := c.GetAll()
	assert.Equal(t, int64(5), totals["records_emitted"])
	assert.Equal(t, int64(1), totals["entities_failed"])
	assert.Equal(t, float64(500), totals["page_size"])
}

func TestCollectorStartTime(t *testing.T) {
	before := time.Now()
	c := NewCollector("sync")
	assert.False(t, c.StartTime().Before(before))
	assert.False(t, c.StartTime().After(time.Now()))
}

func TestTimerMeasuresElapsed(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), 5*time.Millisecond)
}
