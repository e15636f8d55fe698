package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestNewPrometheusMetrics(t *testing.T) {
	metrics := NewPrometheusMetrics(MetricsConfig{})
	if metrics == nil {
		t.Fatal("Expected metrics to be created, got nil")
	}
	if metrics.registry == nil {
		t.Fatal("Expected registry to be initialized")
	}
	if metrics.ringDepth == nil {
		t.Error("Expected ringDepth to be initialized")
	}
	if metrics.rxPackets == nil {
		t.Error("Expected rxPackets to be initialized")
	}
	if metrics.txAgain == nil {
		t.Error("Expected txAgain to be initialized")
	}
}

func TestRecordRxPacket(t *testing.T) {
	metrics := NewPrometheusMetrics(MetricsConfig{Namespace: "xsktest"})

	metrics.RecordRxPacket("2", "0", 64)
	metrics.RecordRxPacket("2", "0", 100)

	metricFamilies, err := metrics.registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	var found bool
	for _, mf := range metricFamilies {
		if *mf.Name == "xsktest_rx_packets_total" {
			found = true
			if len(mf.Metric) < 1 {
				t.Error("Expected at least 1 metric entry")
			}
			if *mf.Metric[0].Counter.Value != 2 {
				t.Errorf("Expected counter value 2, got %v", *mf.Metric[0].Counter.Value)
			}
		}
	}
	if !found {
		t.Error("Expected to find xsktest_rx_packets_total metric")
	}
}

func TestRecordRxDrop(t *testing.T) {
	metrics := NewPrometheusMetrics(MetricsConfig{Namespace: "xsktest"})

	metrics.RecordRxDrop("2", "0", "nospace")
	metrics.RecordRxDrop("2", "0", "nospace")
	metrics.RecordRxDrop("2", "0", "invalid")

	metricFamilies, err := metrics.registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	var found bool
	for _, mf := range metricFamilies {
		if *mf.Name == "xsktest_rx_dropped_total" {
			found = true
			if len(mf.Metric) != 2 {
				t.Errorf("Expected 2 label combinations, got %d", len(mf.Metric))
			}
		}
	}
	if !found {
		t.Error("Expected to find xsktest_rx_dropped_total metric")
	}
}

func TestSetRingDepth(t *testing.T) {
	metrics := NewPrometheusMetrics(MetricsConfig{Namespace: "xsktest"})

	metrics.SetRingDepth("rx", "2", "0", 3)

	metricFamilies, err := metrics.registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	var found bool
	for _, mf := range metricFamilies {
		if *mf.Name == "xsktest_ring_depth" {
			found = true
			if *mf.Metric[0].Gauge.Value != 3 {
				t.Errorf("Expected gauge value 3, got %v", *mf.Metric[0].Gauge.Value)
			}
		}
	}
	if !found {
		t.Error("Expected to find xsktest_ring_depth metric")
	}
}

func TestMetricsCollectorServer(t *testing.T) {
	mc := NewMetricsCollector(MetricsConfig{Namespace: "xsktest"})
	mc.GetPrometheus().RecordRxPacket("2", "0", 64)

	handler := http.NewServeMux()
	handler.Handle("/metrics", promhttp.HandlerFor(mc.GetPrometheus().GetRegistry(), promhttp.HandlerOpts{}))
	handler.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to query health endpoint: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	mresp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("Failed to query metrics endpoint: %v", err)
	}
	defer mresp.Body.Close()
	body, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(body), "xsktest_rx_packets_total") {
		t.Error("Expected /metrics to expose the collector's xsktest_rx_packets_total")
	}
}

func TestMetricsCollectorStopServerNoop(t *testing.T) {
	mc := NewMetricsCollector(MetricsConfig{Namespace: "xsktest"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := mc.StopServer(ctx); err != nil {
		t.Errorf("Expected nil error stopping an unstarted server, got %v", err)
	}
}

func TestMetricsCollectorEnableDisable(t *testing.T) {
	mc := NewMetricsCollector(MetricsConfig{Namespace: "xsktest"})

	mc.Disable()
	if mc.enabled {
		t.Error("Expected collector to be disabled")
	}

	mc.Enable()
	if !mc.enabled {
		t.Error("Expected collector to be enabled")
	}
}

func TestDefaultMetricsConfig(t *testing.T) {
	cfg := DefaultMetricsConfig()
	if cfg.Namespace != "xsk" {
		t.Errorf("Expected namespace 'xsk', got %s", cfg.Namespace)
	}
	if !cfg.ExposeGoMetrics {
		t.Error("Expected ExposeGoMetrics to default true")
	}
}
