package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RunMetrics aggregates pipeline activity recorded to Prometheus.
type RunMetrics struct {
	TasksPassed     int64 `json:"tasks_passed"`
	TasksFailed     int64 `json:"tasks_failed"`
	InstallAttempts int64 `json:"install_attempts"`
	ConsentRejects  int64 `json:"consent_rejects"`
}

// QueryService queries a Prometheus server for aggregated pipeline
// metrics.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus
// URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("creating Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// GetRunMetrics aggregates task, install, and consent counters.
func (q *QueryService) GetRunMetrics(ctx context.Context) (*RunMetrics, error) {
	out := &RunMetrics{}

	queries := []struct {
		expr string
		dst  *int64
	}{
		{`sum(pipeline_tasks_total{status="passed"})`, &out.TasksPassed},
		{`sum(pipeline_tasks_total{status="failed"})`, &out.TasksFailed},
		{`sum(dependency_installs_total)`, &out.InstallAttempts},
		{`sum(consent_decisions_total{decision="reject"})`, &out.ConsentRejects},
	}

	for _, query := range queries {
		result, _, err := q.queryAPI.Query(ctx, query.expr, time.Now())
		if err != nil {
			return nil, fmt.Errorf("querying %s: %w", query.expr, err)
		}
		if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
			*query.dst = int64(vector[0].Value)
		}
	}

	return out, nil
}
