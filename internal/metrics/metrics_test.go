package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestPrivateRegistriesDoNotCollide(t *testing.T) {
	a := NewRegistryMetrics()
	b := NewRegistryMetrics()

	a.RecordHTTPRequest("GET /whiteboard/get", 200, time.Millisecond)
	a.RecordHTTPRequest("GET /whiteboard/get", 404, time.Millisecond)
	b.RecordHTTPRequest("GET /whiteboard/get", 201, time.Millisecond)

	if got := value(t, a.HTTPRequestsTotal.WithLabelValues("GET /whiteboard/get", "2xx")); got != 1 {
		t.Errorf("Expected 1 ok request on a, got %v", got)
	}
	if got := value(t, a.HTTPRequestsTotal.WithLabelValues("GET /whiteboard/get", "4xx")); got != 1 {
		t.Errorf("Expected 1 client error on a, got %v", got)
	}
	if got := value(t, b.HTTPRequestsTotal.WithLabelValues("GET /whiteboard/get", "2xx")); got != 1 {
		t.Errorf("Expected 1 ok request on b, got %v", got)
	}
}

func TestStoreStats(t *testing.T) {
	m := NewRegistryMetrics()
	m.UpdateStoreStats(3, 11)
	m.RecordStoreOperation("put_current", "success", time.Millisecond)

	if got := value(t, m.WhiteboardsTotal); got != 3 {
		t.Errorf("Expected 3 whiteboards, got %v", got)
	}
	if got := value(t, m.VersionsTotal); got != 11 {
		t.Errorf("Expected 11 versions, got %v", got)
	}

	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "boardstore_store_operations_total" {
			found = true
		}
	}
	if !found {
		t.Error("Expected boardstore_store_operations_total to be gathered")
	}
}
