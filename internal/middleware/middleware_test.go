package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/perimetra/projects-service/internal/metrics"
)

// testMetrics is shared across tests; metrics register against the default
// registry and can only be created once per test binary.
var testMetrics = metrics.NewMetrics()

func keyRouter(logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(Logging(logger, testMetrics))
	router.HandleFunc("/v1/api-keys/{apiKey}/tenant-id", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return router
}

func TestLogging_RedactsSecretPathSegments(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	router := keyRouter(zap.New(core))

	secret := "live.deadbeefdeadbeefdeadbeefdeadbeef"
	req := httptest.NewRequest(http.MethodGet, "/v1/api-keys/"+secret+"/tenant-id", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "/v1/api-keys/{apiKey}/tenant-id", fields["path"])
	assert.Equal(t, "GET /v1/api-keys/{apiKey}/tenant-id", fields["operation"])
	for name, value := range fields {
		if s, ok := value.(string); ok {
			assert.NotContains(t, s, secret, "field %s leaks the presented key", name)
		}
	}
}

func TestLogging_MetricLabelsCarryRouteTemplate(t *testing.T) {
	core, _ := observer.New(zap.InfoLevel)
	router := keyRouter(zap.New(core))

	secret := "test.cafebabecafebabecafebabecafebabe"
	req := httptest.NewRequest(http.MethodGet, "/v1/api-keys/"+secret+"/tenant-id", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	found := false
	for _, family := range families {
		if family.GetName() != "projects_request_duration_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				assert.NotContains(t, label.GetValue(), secret)
				if label.GetValue() == "GET /v1/api-keys/{apiKey}/tenant-id" {
					found = true
				}
			}
		}
	}
	assert.True(t, found, "expected a duration series labeled with the route template")
}

func TestRoutePattern_UnmatchedRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	assert.Equal(t, "unmatched", routePattern(req))
}

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}
