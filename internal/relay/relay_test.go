package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/infra/cloud"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/testutil"
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/logger"
)

const validRecord = `{
  "AwsAccountId": "654178722619",
  "TransactionId": "a1",
  "CallId": "c1",
  "VoiceConnectorId": "vc1",
  "Status": "Completed",
  "StatusMessage": "Normal Call Clearing",
  "BillableDurationSeconds": 306,
  "BillableDurationMinutes": 5.1,
  "SchemaVersion": "2.0",
  "SourcePhoneNumber": "+12025550100",
  "SourceCountry": "US",
  "DestinationPhoneNumber": "+13125550199",
  "DestinationCountry": "US",
  "UsageType": "USE1-US-inbound-minutes",
  "ServiceCode": "AmazonChimeVoiceConnector",
  "Direction": "Inbound",
  "StartTimeEpochSeconds": 1709251200,
  "EndTimeEpochSeconds": 1709251506,
  "Region": "us-east-1",
  "Streaming": true,
  "IsProxyCall": false
}`

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.Wrap(zap.New(core)), logs
}

func baseRecord(t *testing.T) map[string]any {
	t.Helper()
	rec, err := decodeObject([]byte(validRecord))
	require.NoError(t, err)
	return rec
}

func TestValidatorKeepsWellTypedRecord(t *testing.T) {
	t.Parallel()

	clean, removed := NewValidator(domain.CDRSchema).Validate(baseRecord(t))
	assert.Empty(t, removed)
	assert.Len(t, clean, 21)
}

func TestValidatorRemovesEachBadField(t *testing.T) {
	t.Parallel()

	wrong := map[domain.FieldKind]any{
		domain.KindString:  json.Number("7"),
		domain.KindInteger: "306",
		domain.KindNumber:  true,
		domain.KindBoolean: "true",
	}

	for field, kind := range domain.CDRSchema {
		field, kind := field, kind
		t.Run(field, func(t *testing.T) {
			t.Parallel()
			v := NewValidator(domain.CDRSchema)
			original := baseRecord(t)

			missing := baseRecord(t)
			delete(missing, field)
			assertOnlyRemoved(t, v, missing, original, field)

			mistyped := baseRecord(t)
			mistyped[field] = wrong[kind]
			assertOnlyRemoved(t, v, mistyped, original, field)
		})
	}
}

func assertOnlyRemoved(t *testing.T, v *Validator, input, original map[string]any, field string) {
	t.Helper()
	clean, removed := v.Validate(input)
	assert.Equal(t, []string{field}, removed)
	assert.NotContains(t, clean, field)
	for k, want := range original {
		if k == field {
			continue
		}
		assert.Equal(t, want, clean[k], k)
	}
}

func TestValidatorIntegerRejectsFraction(t *testing.T) {
	t.Parallel()

	rec := baseRecord(t)
	rec["BillableDurationSeconds"] = json.Number("306.5")
	rec["BillableDurationMinutes"] = json.Number("5")

	clean, removed := NewValidator(domain.CDRSchema).Validate(rec)
	assert.Equal(t, []string{"BillableDurationSeconds"}, removed)
	assert.Equal(t, json.Number("5"), clean["BillableDurationMinutes"])
}

func TestRelayFiltersAndLogsRemovedKeys(t *testing.T) {
	t.Parallel()

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(validRecord), &raw))
	delete(raw, "CallId")
	raw["StartTimeEpochSeconds"] = "yesterday"
	raw["BadData"] = "bad-1"
	body, err := json.Marshal(raw)
	require.NoError(t, err)

	store := &testutil.FakeS3{Objects: map[string][]byte{"cdrs/obj.json": body}}
	hose := &testutil.FakeFirehose{}
	lg, logs := observedLogger()

	r := New(cloud.NewS3ObjectStore(store), NewValidator(domain.CDRSchema), []Sink{NewFirehoseSink(hose, "cdr-stream")}, lg)
	summary, err := r.HandleS3Event(context.Background(), event("cdrs", "obj.json"))
	require.NoError(t, err)
	assert.Equal(t, Summary{Relayed: 1}, summary)

	require.Len(t, hose.Records, 1)
	assert.Equal(t, []string{"cdr-stream"}, hose.Streams)

	var relayed map[string]any
	require.NoError(t, json.Unmarshal(hose.Records[0], &relayed))
	assert.Len(t, relayed, 19)
	assert.NotContains(t, relayed, "CallId")
	assert.NotContains(t, relayed, "StartTimeEpochSeconds")
	assert.NotContains(t, relayed, "BadData")
	assert.Contains(t, string(hose.Records[0]), `"BillableDurationMinutes":5.1`)
	assert.Contains(t, string(hose.Records[0]), `"EndTimeEpochSeconds":1709251506`)

	entries := logs.FilterMessage("relay: removed keys from record").All()
	require.Len(t, entries, 1)
	assert.Equal(t, []interface{}{"BadData", "CallId", "StartTimeEpochSeconds"}, entries[0].ContextMap()["removed_keys"])
}

func TestRelayProcessesEveryRecordInBatch(t *testing.T) {
	t.Parallel()

	store := &testutil.FakeS3{Objects: map[string][]byte{
		"cdrs/a.json":   []byte(validRecord),
		"cdrs/b.json":   []byte(validRecord),
		"cdrs/bad.json": []byte(`[1,2,3]`),
		"cdrs/nil.json": []byte(`{"Unknown": 1}`),
	}}
	hose := &testutil.FakeFirehose{}
	lg, logs := observedLogger()

	r := New(cloud.NewS3ObjectStore(store), NewValidator(domain.CDRSchema), []Sink{NewFirehoseSink(hose, "s")}, lg)
	summary, err := r.HandleS3Event(context.Background(), event("cdrs", "a.json", "bad.json", "b.json", "nil.json"))
	require.NoError(t, err)
	assert.Equal(t, Summary{Relayed: 2, Rejected: 2}, summary)
	assert.Len(t, hose.Records, 2)
	assert.Equal(t, 2, logs.FilterMessage("relay: record rejected").Len())
}

func TestRelayWithoutValidationForwardsVerbatim(t *testing.T) {
	t.Parallel()

	body := []byte(`{"CallId": "c1", "Extra": [1, 2]}`)
	store := &testutil.FakeS3{Objects: map[string][]byte{"b/k": body}}
	hose := &testutil.FakeFirehose{}

	r := New(cloud.NewS3ObjectStore(store), nil, []Sink{NewFirehoseSink(hose, "s")}, logger.NewNop())
	outcome, err := r.Process(context.Background(), "b", "k")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRelayed, outcome)
	assert.Equal(t, `{"CallId":"c1","Extra":[1,2]}`, string(hose.Records[0]))
}

func TestRelayCollectsUnhandledErrors(t *testing.T) {
	t.Parallel()

	store := &testutil.FakeS3{Objects: map[string][]byte{"b/ok.json": []byte(validRecord)}}
	hose := &testutil.FakeFirehose{Err: errors.New("ServiceUnavailableException")}

	r := New(cloud.NewS3ObjectStore(store), NewValidator(domain.CDRSchema), []Sink{NewFirehoseSink(hose, "s")}, logger.NewNop())
	summary, err := r.HandleS3Event(context.Background(), event("b", "ok.json", "missing.json"))
	require.Error(t, err)
	assert.Equal(t, Summary{Failed: 2}, summary)
	assert.Contains(t, err.Error(), "ServiceUnavailableException")
	assert.Contains(t, err.Error(), "NoSuchKey")
}

type recordingSink struct {
	name     string
	payloads [][]byte
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, payload []byte) error {
	s.payloads = append(s.payloads, payload)
	return nil
}

func TestRelayFansOutToAllSinks(t *testing.T) {
	t.Parallel()

	store := &testutil.FakeS3{Objects: map[string][]byte{"b/k": []byte(validRecord)}}
	first, second := &recordingSink{name: "one"}, &recordingSink{name: "two"}

	r := New(cloud.NewS3ObjectStore(store), NewValidator(domain.CDRSchema), []Sink{first, second}, logger.NewNop())
	_, err := r.Process(context.Background(), "b", "k")
	require.NoError(t, err)
	require.Len(t, first.payloads, 1)
	assert.Equal(t, first.payloads, second.payloads)
}

func event(bucket string, keys ...string) events.S3Event {
	var ev events.S3Event
	for _, k := range keys {
		ev.Records = append(ev.Records, events.S3EventRecord{S3: events.S3Entity{
			Bucket: events.S3Bucket{Name: bucket},
			Object: events.S3Object{Key: k},
		}})
	}
	return ev
}
