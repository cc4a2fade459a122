// Package audit publishes the per-turn dimension-clamp audit trail
// (store.DimensionAudit's {old, new, delta} per dimension, spec section
// 4.1) to Kafka, grounded on intelligencedev-manifold's
// internal/tools/kafka producer (a kafka.Writer built from a broker list,
// wrapped behind a narrow Writer interface for testability). Section 7's
// error taxonomy is explicit that nothing about audit delivery may block a
// turn, so a publish failure is logged and swallowed, never returned to
// the caller.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kadirpekel/persona-core/pkg/store"
)

// Writer is the narrow kafka-go surface this package depends on, so tests
// can substitute an in-memory fake instead of a live broker connection.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Record is the wire shape published for one turn's dimension audit.
type Record struct {
	UserID    string               `json:"user_id"`
	BotID     string               `json:"bot_id"`
	Timestamp time.Time            `json:"timestamp"`
	Audits    []store.DimensionAudit `json:"audits"`
}

// Publisher publishes dimension-audit records, falling back to a log line
// when no broker is configured.
type Publisher struct {
	writer Writer
	topic  string
	logger *slog.Logger
}

// New builds a Publisher from a comma-separated broker list. An empty
// brokers string yields a log-only Publisher (writer is nil), matching
// section 7's "audit delivery must never block a turn": there is simply
// nothing to fail.
func New(brokers, topic string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	brokers = strings.TrimSpace(brokers)
	if brokers == "" {
		return &Publisher{topic: topic, logger: logger}, nil
	}
	brokerList := strings.Split(brokers, ",")
	for i, b := range brokerList {
		brokerList[i] = strings.TrimSpace(b)
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokerList...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Publisher{writer: w, topic: topic, logger: logger}, nil
}

// Publish emits one turn's dimension-audit record. Errors are logged, not
// returned: a broken audit pipe must never degrade the user-facing turn.
func (p *Publisher) Publish(ctx context.Context, userID, botID string, audits []store.DimensionAudit, now time.Time) {
	if p == nil || len(audits) == 0 {
		return
	}
	rec := Record{UserID: userID, BotID: botID, Timestamp: now, Audits: audits}

	if p.writer == nil {
		p.logger.Info("dimension_audit", "user_id", userID, "bot_id", botID, "audits", auditSummary(audits))
		return
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		p.logger.Warn("dimension_audit_marshal_failed", "error", err)
		return
	}
	msg := kafka.Message{Key: []byte(userID), Value: raw}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("dimension_audit_publish_failed", "error", err, "topic", p.topic)
	}
}

func auditSummary(audits []store.DimensionAudit) string {
	parts := make([]string, 0, len(audits))
	for _, a := range audits {
		parts = append(parts, fmt.Sprintf("%s:%.3f->%.3f(%+.3f)", a.Name, a.Old, a.New, a.Delta))
	}
	return strings.Join(parts, " ")
}

// Close releases the underlying broker connection, if any.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	if w, ok := p.writer.(*kafka.Writer); ok {
		return w.Close()
	}
	return nil
}
