package domain

// FieldKind is the JSON type a CDR field must carry.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindInteger FieldKind = "integer"
	KindNumber  FieldKind = "number"
	KindBoolean FieldKind = "boolean"
)

// CDR is one call detail record as emitted by the voice connector.
type CDR struct {
	AwsAccountID            string  `json:"AwsAccountId"`
	TransactionID           string  `json:"TransactionId"`
	CallID                  string  `json:"CallId"`
	VoiceConnectorID        string  `json:"VoiceConnectorId"`
	Status                  string  `json:"Status"`
	StatusMessage           string  `json:"StatusMessage"`
	BillableDurationSeconds int64   `json:"BillableDurationSeconds"`
	BillableDurationMinutes float64 `json:"BillableDurationMinutes"`
	SchemaVersion           string  `json:"SchemaVersion"`
	SourcePhoneNumber       string  `json:"SourcePhoneNumber"`
	SourceCountry           string  `json:"SourceCountry"`
	DestinationPhoneNumber  string  `json:"DestinationPhoneNumber"`
	DestinationCountry      string  `json:"DestinationCountry"`
	UsageType               string  `json:"UsageType"`
	ServiceCode             string  `json:"ServiceCode"`
	Direction               string  `json:"Direction"`
	StartTimeEpochSeconds   int64   `json:"StartTimeEpochSeconds"`
	EndTimeEpochSeconds     int64   `json:"EndTimeEpochSeconds"`
	Region                  string  `json:"Region"`
	Streaming               bool    `json:"Streaming"`
	IsProxyCall             bool    `json:"IsProxyCall"`
}

// CDRSchema lists every field a relayed record may carry and its required type.
var CDRSchema = map[string]FieldKind{
	"AwsAccountId":            KindString,
	"TransactionId":           KindString,
	"CallId":                  KindString,
	"VoiceConnectorId":        KindString,
	"Status":                  KindString,
	"StatusMessage":           KindString,
	"BillableDurationSeconds": KindInteger,
	"BillableDurationMinutes": KindNumber,
	"SchemaVersion":           KindString,
	"SourcePhoneNumber":       KindString,
	"SourceCountry":           KindString,
	"DestinationPhoneNumber":  KindString,
	"DestinationCountry":      KindString,
	"UsageType":               KindString,
	"ServiceCode":             KindString,
	"Direction":               KindString,
	"StartTimeEpochSeconds":   KindInteger,
	"EndTimeEpochSeconds":     KindInteger,
	"Region":                  KindString,
	"Streaming":               KindBoolean,
	"IsProxyCall":             KindBoolean,
}

// CDRKeyPrefix is the root under which the voice connector writes raw records.
const CDRKeyPrefix = "Amazon-Chime-Voice-Connector-CDRs/json"
