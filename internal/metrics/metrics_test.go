package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_RoomAndConnectionGauges(t *testing.T) {
	m := NewManager(WithRegistry(prometheus.NewRegistry()))

	m.SetRooms(3)
	m.ConnOpened()
	m.ConnOpened()
	m.ConnClosed()
	m.MemberDropped()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.roomsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.membersDropped))
}

func TestManager_CommandsAndBroadcasts(t *testing.T) {
	m := NewManager(WithRegistry(prometheus.NewRegistry()))

	m.Command("add-event", "ok")
	m.Command("add-event", "ok")
	m.Command("undo-event", "empty_log")
	m.Broadcast("event-added", 2)
	m.Broadcast("event-added", 3)
	m.FeedMessage("dropped")
	m.Gesture("ignored")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.commands.WithLabelValues("add-event", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("undo-event", "empty_log")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.broadcasts.WithLabelValues("event-added")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.deliveries))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.feedPublished.WithLabelValues("dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gestures.WithLabelValues("ignored")))
}

func TestManager_MiddlewareAndHandler(t *testing.T) {
	m := NewManager(WithRegistry(prometheus.NewRegistry()), WithNamespace("test"))

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/matches/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/matches/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/matches/{id}", "GET", "404")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_relay_http_requests_total")
}

func TestNewManager_DefaultRegistryIsPrivate(t *testing.T) {
	a := NewManager()
	b := NewManager()
	assert.NotSame(t, a.Registry(), b.Registry())
}

func TestManager_SubsystemAndBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewManager(
		WithRegistry(reg),
		WithNamespace("venue"),
		WithSubsystem("court"),
		WithHistogramBuckets([]float64{0.05, 0.5}),
	)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	families, err := reg.Gather()
	require.NoError(t, err)
	var buckets []float64
	for _, f := range families {
		if f.GetName() != "venue_court_http_request_duration_seconds" {
			continue
		}
		for _, b := range f.GetMetric()[0].GetHistogram().GetBucket() {
			buckets = append(buckets, b.GetUpperBound())
		}
	}
	assert.Equal(t, []float64{0.05, 0.5}, buckets)
}
