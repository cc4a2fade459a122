package audit

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/persona-core/pkg/store"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func TestNew_EmptyBrokersYieldsLogOnlyPublisher(t *testing.T) {
	p, err := New("", "topic", nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Nil(t, p.writer)
}

func TestPublish_NoAuditsIsNoOp(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, topic: "t"}
	p.Publish(context.Background(), "user1", "bot1", nil, time.Now())
	assert.Empty(t, w.messages)
}

func TestPublish_WritesOneMessagePerTurn(t *testing.T) {
	w := &fakeWriter{}
	p := &Publisher{writer: w, topic: "t"}
	audits := []store.DimensionAudit{
		{Name: "trust", Old: 0.5, New: 0.52, Delta: 0.02},
		{Name: "closeness", Old: 0.4, New: 0.4, Delta: 0},
	}

	p.Publish(context.Background(), "user1", "bot1", audits, time.Now())

	require.Len(t, w.messages, 1)
	assert.Equal(t, []byte("user1"), w.messages[0].Key)
}

func TestPublish_WriteFailureDoesNotPanicOrBlock(t *testing.T) {
	w := &fakeWriter{err: assert.AnError}
	p := &Publisher{writer: w, topic: "t"}
	audits := []store.DimensionAudit{{Name: "trust", Old: 0.5, New: 0.5}}

	assert.NotPanics(t, func() {
		p.Publish(context.Background(), "user1", "bot1", audits, time.Now())
	})
}

func TestPublish_NilPublisherIsNoOp(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() {
		p.Publish(context.Background(), "user1", "bot1", []store.DimensionAudit{{Name: "trust"}}, time.Now())
	})
}
