// Package publish announces completed analytics passes on a NATS subject.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/unklstewy/balloonscope/internal/insights"
	"github.com/unklstewy/balloonscope/pkg/analytics"
	"github.com/unklstewy/balloonscope/pkg/feed"
	"github.com/unklstewy/balloonscope/pkg/regression"
)

// SubjectInsights is the default subject for report announcements.
const SubjectInsights = "balloons.insights"

// Publisher announces reports.
type Publisher interface {
	PublishReport(ctx context.Context, report *insights.Report) error
	Close() error
}

// ReportMessage is the published form of a report. The annotated sample and
// trajectories are left out to keep messages small.
type ReportMessage struct {
	RunID             string            `json:"runId"`
	GeneratedAt       time.Time         `json:"generatedAt"`
	Metadata          feed.Metadata     `json:"metadata"`
	Overview          insights.Overview `json:"overview"`
	Drift             analytics.Drift   `json:"drift"`
	AverageAltitudeKm float64           `json:"averageAltitudeKm"`
	SampleSize        int               `json:"sampleSize"`
	WithTemperature   int               `json:"withTemperature"`
	Trend             *regression.Fit   `json:"trend"`
}

// NewReportMessage builds the message for a report.
func NewReportMessage(r *insights.Report) ReportMessage {
	return ReportMessage{
		RunID:             r.RunID,
		GeneratedAt:       r.GeneratedAt,
		Metadata:          r.Metadata,
		Overview:          r.Overview,
		Drift:             r.Global.Drift,
		AverageAltitudeKm: r.Global.AverageAltitudeKm,
		SampleSize:        len(r.Global.Sample),
		WithTemperature:   r.Global.WithTemperature,
		Trend:             r.Global.Trend,
	}
}

// conn is the subset of *nats.Conn the publisher needs.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSPublisher publishes reports to a NATS subject.
type NATSPublisher struct {
	conn    conn
	subject string
}

// NewNATSPublisher connects to url. An empty subject uses SubjectInsights.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("balloonscope"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSPublisher(nc, subject), nil
}

func newNATSPublisher(c conn, subject string) *NATSPublisher {
	if subject == "" {
		subject = SubjectInsights
	}
	return &NATSPublisher{conn: c, subject: subject}
}

// Subject returns the subject reports are published to.
func (p *NATSPublisher) Subject() string {
	return p.subject
}

// PublishReport publishes a report and waits for the server to acknowledge
// the flush or ctx to end.
func (p *NATSPublisher) PublishReport(ctx context.Context, report *insights.Report) error {
	if report == nil {
		return fmt.Errorf("nil report")
	}

	data, err := json.Marshal(NewReportMessage(report))
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish report: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush report: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
func (p *NATSPublisher) Close() error {
	if p.conn != nil {
		p.conn.Close()
	}
	return nil
}

// Noop discards reports. Used when publishing is disabled.
type Noop struct{}

// PublishReport implements Publisher.
func (Noop) PublishReport(context.Context, *insights.Report) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
