package metrics

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"github.com/xhad/rag/internal/models"
)

type ReporterConfig struct {
	SinkURL   string
	AgentName string
	Timeout   time.Duration
}

// Reporter delivers query run records to an HTTP metrics sink,
// best-effort. Delivery problems are logged and swallowed; a metrics
// outage must never fail the query that produced the record.
type Reporter struct {
	config ReporterConfig
	client *resty.Client
	logger *log.Logger
}

func NewWithConfig(config ReporterConfig, logger *log.Logger) *Reporter {
	if config.AgentName == "" {
		config.AgentName = "rag-module"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	client := resty.New().
		SetTimeout(config.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Reporter{
		config: config,
		client: client,
		logger: logger,
	}
}

// Report sends one run record as a single JSON payload. It returns
// false when the sink is unconfigured or delivery fails, and never
// returns an error.
func (r *Reporter) Report(ctx context.Context, run models.QueryRun) bool {
	if r.config.SinkURL == "" {
		r.logger.Warn("metrics sink not configured, skipping submission", "run_id", run.RunID)
		return false
	}

	if run.AgentName == "" {
		run.AgentName = r.config.AgentName
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(run).
		Post(r.config.SinkURL)
	if err != nil {
		r.logger.Error("failed to send metrics", "run_id", run.RunID, "error", err)
		return false
	}
	if resp.IsError() {
		r.logger.Error("metrics sink rejected record", "run_id", run.RunID, "status", resp.StatusCode())
		return false
	}

	return true
}
