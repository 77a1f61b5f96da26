package scylla

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
	apperrors "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/pkg/errors"
)

// CDRStore archives relayed records in Scylla, partitioned by voice
// connector and call day.
type CDRStore struct {
	session *gocql.Session
}

// NewCDRStore creates a new archive store.
func NewCDRStore(session *gocql.Session) *CDRStore {
	return &CDRStore{session: session}
}

// Name identifies the sink in logs.
func (s *CDRStore) Name() string { return "scylla" }

// Deliver decodes payload and inserts it. Fields the relay removed are
// stored as their zero values.
func (s *CDRStore) Deliver(ctx context.Context, payload []byte) error {
	var record domain.CDR
	if err := json.Unmarshal(payload, &record); err != nil {
		return fmt.Errorf("cdr store: decode: %v: %w", err, apperrors.ErrValidation)
	}
	if record.CallID == "" {
		return fmt.Errorf("cdr store: record has no call id: %w", apperrors.ErrValidation)
	}
	return s.Insert(ctx, record, payload)
}

// Insert writes one record together with its raw payload.
func (s *CDRStore) Insert(ctx context.Context, record domain.CDR, payload []byte) error {
	start := time.Unix(record.StartTimeEpochSeconds, 0).UTC()
	if err := s.session.Query(`INSERT INTO cdrs_by_connector (voice_connector_id, day, start_time, call_id, transaction_id,
		source_number, destination_number, billable_seconds, status, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.VoiceConnectorID, bucketDate(start), start, record.CallID, record.TransactionID,
		record.SourcePhoneNumber, record.DestinationPhoneNumber, record.BillableDurationSeconds, record.Status, string(payload),
	).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("cdr store: insert cdrs_by_connector: %w", err)
	}
	return nil
}

// ListByConnector pages through one connector's records for a day.
func (s *CDRStore) ListByConnector(ctx context.Context, connectorID string, day time.Time, limit int, pagingState []byte) ([]domain.CDR, []byte, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.session.Query(`SELECT payload FROM cdrs_by_connector WHERE voice_connector_id = ? AND day = ?`,
		connectorID, bucketDate(day)).WithContext(ctx)
	query = query.PageSize(limit)
	if len(pagingState) > 0 {
		query = query.PageState(pagingState)
	}

	iter := query.Iter()
	records := make([]domain.CDR, 0, limit)

	var payload string
	for iter.Scan(&payload) {
		var record domain.CDR
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			continue
		}
		records = append(records, record)
	}

	if err := iter.Close(); err != nil {
		return nil, nil, fmt.Errorf("cdr store: iter close: %w", err)
	}

	return records, iter.PageState(), nil
}

func bucketDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
