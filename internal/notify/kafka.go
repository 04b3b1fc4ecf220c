package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"platewatch/internal/config"
	"platewatch/internal/domain/radar"
)

// ErrNotConfigured means no brokers were provided; notifications are
// silently disabled in that case.
var ErrNotConfigured = errors.New("kafka notifier is not configured")

// RunSummary is published once per run, completed or failed, so operators
// learn which window failed without scraping logs.
type RunSummary struct {
	RunID             string    `json:"run_id"`
	Status            string    `json:"status"`
	WindowFrom        time.Time `json:"window_from"`
	WindowTo          time.Time `json:"window_to"`
	Error             string    `json:"error,omitempty"`
	ReadingsAccepted  int       `json:"readings_accepted"`
	ReadingsRejected  int       `json:"readings_rejected"`
	CamerasScored     int       `json:"cameras_scored"`
	SegmentsBuilt     int       `json:"segments_built"`
	PlatesScored      int       `json:"plates_scored"`
	PlatesFlagged     int       `json:"plates_flagged"`
	InactivityUpserts int       `json:"inactivity_upserts"`
}

type cloneAlert struct {
	RunID   string    `json:"run_id"`
	Plate   string    `json:"plate"`
	Score   float64   `json:"score"`
	At      time.Time `json:"at"`
	Details struct {
		TypeChanges          int `json:"type_changes"`
		InconsistentSegments int `json:"inconsistent_segments"`
		DistinctTypesTrusted int `json:"distinct_types_trusted"`
	} `json:"details"`
}

// Notifier publishes run summaries and flagged-plate alerts.
type Notifier struct {
	summaries *kafka.Writer
	alerts    *kafka.Writer
}

// New builds a notifier, or ErrNotConfigured when brokers are absent.
func New(cfg config.KafkaConfig) (*Notifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrNotConfigured
	}
	summaryTopic := cfg.SummaryTopic
	if summaryTopic == "" {
		summaryTopic = "platewatch.run-summaries"
	}
	alertTopic := cfg.AlertTopic
	if alertTopic == "" {
		alertTopic = "platewatch.clone-alerts"
	}

	return &Notifier{
		summaries: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        summaryTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		alerts: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        alertTopic,
			Balancer:     &kafka.Hash{}, // partition by plate
			RequiredAcks: kafka.RequireOne,
		},
	}, nil
}

// PublishSummary emits one run summary, keyed by run id.
func (n *Notifier) PublishSummary(ctx context.Context, summary RunSummary) error {
	if n == nil {
		return nil
	}
	value, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	msg := kafka.Message{Key: []byte(summary.RunID), Value: value}
	if err := n.summaries.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run summary: %w", err)
	}
	return nil
}

// PublishCloneAlerts emits one message per flagged plate.
func (n *Notifier) PublishCloneAlerts(ctx context.Context, runID string, scores []radar.CloneScore) error {
	if n == nil {
		return nil
	}

	now := time.Now()
	var msgs []kafka.Message
	for _, s := range scores {
		if !s.Flagged {
			continue
		}
		alert := cloneAlert{RunID: runID, Plate: s.Plate, Score: s.Score, At: now}
		alert.Details.TypeChanges = s.TypeChanges
		alert.Details.InconsistentSegments = s.InconsistentSegments
		alert.Details.DistinctTypesTrusted = s.DistinctTypesTrusted

		value, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("marshal clone alert for %s: %w", s.Plate, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(s.Plate), Value: value})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := n.alerts.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish clone alerts: %w", err)
	}
	return nil
}

// Close flushes and closes both writers.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	if err := n.summaries.Close(); err != nil {
		return err
	}
	return n.alerts.Close()
}
