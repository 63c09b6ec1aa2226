package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesRegisteredCounters(t *testing.T) {
	RequestsTotal.WithLabelValues("GET", "/:index/:id", "200").Inc()
	RequestDuration.WithLabelValues("GET", "/:index/:id").Observe(0.01)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "xapiand_http_requests_total")
	assert.True(t, strings.Contains(w.Body.String(), "xapiand_http_request_duration_seconds"))
}
