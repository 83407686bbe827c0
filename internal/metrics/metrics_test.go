package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_SingletonAndFieldsNonNil(t *testing.T) {
	m1 := New()
	if m1 == nil {
		t.Fatal("New() returned nil metrics instance")
	}

	if m2 := New(); m1 != m2 {
		t.Fatal("New() did not behave as a singleton, pointers differ")
	}

	if m1.ExportsTotal == nil {
		t.Error("ExportsTotal is nil")
	}
	if m1.FilesFetchTotal == nil {
		t.Error("FilesFetchTotal is nil")
	}
	if m1.DatabaseQueryDuration == nil || m1.StorageFetchDuration == nil {
		t.Error("backend histograms are nil")
	}
	if m1.DeliveryFailuresTotal == nil {
		t.Error("DeliveryFailuresTotal is nil")
	}
	if m1.MemoryGauge == nil || m1.GoroutinesGauge == nil {
		t.Error("runtime gauges are nil")
	}
}

func TestFilesFetchTotal_LabelsAreIndependent(t *testing.T) {
	m := New()

	before := testutil.ToFloat64(m.FilesFetchTotal.WithLabelValues("skipped"))
	m.FilesFetchTotal.WithLabelValues("skipped").Inc()
	m.FilesFetchTotal.WithLabelValues("skipped").Inc()

	if got := testutil.ToFloat64(m.FilesFetchTotal.WithLabelValues("skipped")); got != before+2 {
		t.Errorf("skipped counter = %v, want %v", got, before+2)
	}
}
