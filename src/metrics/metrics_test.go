package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestCollector(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveTier("embedding", "CpuLocalRuntime", "success", 20*time.Millisecond)
	c.ObserveTier("embedding", "CpuLocalRuntime", "success", 10*time.Millisecond)
	c.ObserveResult("embedding", "success")
	c.ObserveIsolatedRun("scene_text_ocr", "process_timeout")
	c.ObserveCacheLookup(3, 1)

	body := scrape(t, c)
	assert.Contains(t, body, `cascade_tier_attempts_total{outcome="success",task="embedding",tier="CpuLocalRuntime"} 2`)
	assert.Contains(t, body, `cascade_results_total{status="success",task="embedding"} 1`)
	assert.Contains(t, body, `isolated_runs_total{outcome="process_timeout",task="scene_text_ocr"} 1`)
	assert.Contains(t, body, `embedding_cache_lookups_total{result="hit"} 3`)
	assert.Contains(t, body, `embedding_cache_lookups_total{result="miss"} 1`)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveTier("embedding", "CpuLocalRuntime", "success", time.Second)
		c.ObserveResult("embedding", "success")
		c.ObserveIsolatedRun("embedding", "ok")
		c.ObserveCacheLookup(1, 1)
	})
	assert.NotNil(t, c.Handler())
}
