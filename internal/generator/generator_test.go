package generator

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/infra/cloud"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/testutil"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

var e164 = regexp.MustCompile(`^\+1\d{10}$`)

func newTestGenerator(store *testutil.FakeS3, opts Options) *Generator {
	return New(cloud.NewS3ObjectStore(store), opts, logger.NewNop())
}

func TestRecordInvariants(t *testing.T) {
	t.Parallel()

	g := newTestGenerator(&testutil.FakeS3{}, Options{VoiceConnectorID: "vc1", AccountID: "654178722619", Region: "us-east-1"})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2000; i++ {
		rec := g.Record(now)

		assert.Zero(t, rec.BillableDurationSeconds%6)
		assert.GreaterOrEqual(t, rec.BillableDurationSeconds, int64(300))
		assert.Less(t, rec.BillableDurationSeconds, int64(600))
		assert.InDelta(t, float64(rec.BillableDurationSeconds)/60, rec.BillableDurationMinutes, 1e-9)

		assert.Regexp(t, e164, rec.SourcePhoneNumber)
		assert.Regexp(t, e164, rec.DestinationPhoneNumber)

		assert.LessOrEqual(t, rec.StartTimeEpochSeconds, now.Add(-time.Minute).Unix())
		assert.GreaterOrEqual(t, rec.StartTimeEpochSeconds, now.Add(-time.Hour).Unix())
		assert.Equal(t, rec.StartTimeEpochSeconds+rec.BillableDurationSeconds, rec.EndTimeEpochSeconds)
		assert.NotEqual(t, rec.TransactionID, rec.CallID)
	}
}

func TestQuantize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 300, Quantize(300))
	assert.Equal(t, 300, Quantize(305))
	assert.Equal(t, 594, Quantize(599))
	assert.Equal(t, 306, Quantize(306))
}

func TestRunWritesOneObjectPerRecord(t *testing.T) {
	t.Parallel()

	store := &testutil.FakeS3{}
	g := newTestGenerator(store, Options{
		Bucket:           "cdr-bucket",
		VoiceConnectorID: "fb5twdsrnczr5emo8iweix",
		FileCount:        25,
	})
	fixed := time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fixed }

	n, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	require.Len(t, store.Objects, 25)

	keyPattern := regexp.MustCompile(`^cdr-bucket/Amazon-Chime-Voice-Connector-CDRs/json/fb5twdsrnczr5emo8iweix/2024/02/29/\d+\.\d{9}\.json$`)
	for key, body := range store.Objects {
		assert.Regexp(t, keyPattern, key)

		var fields map[string]any
		require.NoError(t, json.Unmarshal(body, &fields))
		assert.Len(t, fields, 21)
		assert.NotContains(t, fields, "BadData")
	}
}

func TestRunInjectsBadData(t *testing.T) {
	t.Parallel()

	store := &testutil.FakeS3{}
	g := newTestGenerator(store, Options{Bucket: "b", VoiceConnectorID: "vc", FileCount: 3, BadData: true})

	_, err := g.Run(context.Background())
	require.NoError(t, err)

	for _, body := range store.Objects {
		var fields map[string]any
		require.NoError(t, json.Unmarshal(body, &fields))
		assert.True(t, strings.HasPrefix(fields["BadData"].(string), "bad-"))
	}
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()

	store := &testutil.FakeS3{}
	g := newTestGenerator(store, Options{
		Bucket:    "b",
		FileCount: 100,
		DelayMin:  time.Hour,
		DelayMax:  time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n, err := g.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, n)
}
