package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordQuery(t *testing.T) {
	m := New()
	m.RecordQuery("retrieve", "results", 3, 20*time.Millisecond)
	m.RecordQuery("retrieve", "results", 2, 10*time.Millisecond)
	m.RecordQuery("query", "empty", 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("retrieve", "results")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("query", "empty")))
}

func TestRecordBuildAndCorpusSize(t *testing.T) {
	m := New()
	m.RecordBuild("success", time.Second)
	m.RecordBuild("failed", time.Second)
	m.SetCorpusSize(4, 120)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.buildsTotal.WithLabelValues("success")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.corpusChunks))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.corpusDocuments))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordConfidence(0.7)
	m.RecordQuery("query", "results", 5, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "pdfquery_query_requests_total"))
	assert.True(t, strings.Contains(body, "pdfquery_query_confidence_score_bucket"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordQuery("query", "results", 1, time.Millisecond)
	m.RecordBuild("success", time.Second)
	m.RecordConfidence(0.5)
	m.SetCorpusSize(1, 1)
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
