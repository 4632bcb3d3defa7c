package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	Init()
	Init()

	if itemsTotal == nil || tasksTotal == nil || activeWorkers == nil || parseItems == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	ObserveItem("archdaily", "downloaded", 2048)
	ObserveItem("archdaily", "filtered", 0)
	if val := testutil.ToFloat64(itemsTotal.WithLabelValues("archdaily", "downloaded")); val != 1 {
		t.Errorf("Expected downloaded items to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(bytesTotal.WithLabelValues("archdaily")); val != 2048 {
		t.Errorf("Expected bytes to be 2048, got %f", val)
	}

	AddActiveWorkers(5)
	DecActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != 4 {
		t.Errorf("Expected 4 active workers, got %f", val)
	}
	AddActiveWorkers(-4)

	ObserveTask("completed")
	if val := testutil.ToFloat64(tasksTotal.WithLabelValues("completed")); val != 1 {
		t.Errorf("Expected 1 completed task, got %f", val)
	}

	ObserveParse("zcool", 12)
	ObserveHTTPRequest("GET", "/api/tasks", 200, 3*time.Millisecond)
	if val := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); val != 1 {
		t.Errorf("Expected 1 request, got %f", val)
	}
}
