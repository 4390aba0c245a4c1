package reporting_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abcforge/abcsim/pkg/reporting"
)

func TestMetrics_EpsilonGaugeServesOverHTTP(t *testing.T) {
	m := reporting.NewMetrics()
	m.Epsilon.WithLabelValues("sabc").Set(0.42)
	m.AcceptanceRate.WithLabelValues("sabc").Set(0.3)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `abcsim_epsilon{algorithm="sabc"} 0.42`) {
		t.Fatalf("expected epsilon gauge in output, got:\n%s", body)
	}
}

func TestMetrics_StepsCompletedIncrements(t *testing.T) {
	m := reporting.NewMetrics()
	m.StepsCompleted.WithLabelValues("rejection").Inc()
	m.StepsCompleted.WithLabelValues("rejection").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `abcsim_steps_completed_total{algorithm="rejection"} 2`) {
		t.Fatalf("expected counter at 2, got:\n%s", rec.Body.String())
	}
}
