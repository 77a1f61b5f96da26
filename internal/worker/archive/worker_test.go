package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

// fakeReader hands out queued messages, then cancels the run.
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeStore struct {
	errs   map[string]error
	stored []string
}

func (s *fakeStore) Deliver(_ context.Context, payload []byte) error {
	if err, ok := s.errs[string(payload)]; ok {
		return err
	}
	s.stored = append(s.stored, string(payload))
	return nil
}

func TestWorkerCommitsStoredAndMalformedRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{cancel: cancel, messages: []kafka.Message{
		{Offset: 1, Key: []byte("c-1"), Value: []byte(`{"CallId":"c-1"}`)},
		{Offset: 2, Key: []byte("c-2"), Value: []byte(`not json`)},
		{Offset: 3, Key: []byte("c-3"), Value: []byte(`{"CallId":"c-3"}`)},
		{Offset: 4, Key: []byte("c-4"), Value: []byte(`{"CallId":"c-4"}`)},
	}}
	store := &fakeStore{errs: map[string]error{
		`not json`:         fmt.Errorf("decode: %w", apperrors.ErrValidation),
		`{"CallId":"c-3"}`: errors.New("write timeout"),
	}}

	err := New(reader, store, logger.NewNop()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{`{"CallId":"c-1"}`, `{"CallId":"c-4"}`}, store.stored)
	assert.Equal(t, []int64{1, 2, 4}, reader.committed)
	assert.True(t, reader.closed)
}
