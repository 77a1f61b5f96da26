package workflow

import "github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"

// StepInput is the caller-supplied execution input.
type StepInput struct {
	// Date selects the day to transform (YYYY-MM-DD...). Empty means yesterday.
	Date string `json:"Date,omitempty"`
}

// Crawlers names the two catalog crawlers of the daily workflow.
type Crawlers struct {
	RawCrawler       string `json:"rawCrawler"`
	ProcessedCrawler string `json:"processedCrawler"`
}

// Jobs names the transform job of the daily workflow.
type Jobs struct {
	ETLJob string `json:"etlJob"`
}

// Envelope mirrors how a step's result is nested under its result path.
type Envelope[T any] struct {
	Payload T `json:"Payload"`
}

// CrawlStatus is the raw crawler step result, stored under Crawl.
type CrawlStatus struct {
	CrawlerComplete bool   `json:"CrawlerComplete"`
	CrawlerFailure  bool   `json:"CrawlerFailure"`
	ErrorMessage    string `json:"ErrorMessage,omitempty"`
}

// ETLStatus is the transform step result, stored under ETL.
type ETLStatus struct {
	RunID        string `json:"runId"`
	Date         string `json:"date,omitempty"`
	ETLComplete  bool   `json:"ETLComplete"`
	ETLFailure   bool   `json:"ETLFailure"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

// ProcessedStatus is the processed crawler step result, stored under Processed.
type ProcessedStatus struct {
	ProcessedCrawlerComplete bool   `json:"ProcessedCrawlerComplete"`
	ProcessedCrawlerFailure  bool   `json:"ProcessedCrawlerFailure"`
	ErrorMessage             string `json:"ErrorMessage,omitempty"`
}

// DailyState is the document passed between the daily workflow's steps.
type DailyState struct {
	Input     StepInput                  `json:"input"`
	Crawlers  Crawlers                   `json:"crawlers"`
	Jobs      Jobs                       `json:"jobs"`
	Crawl     *Envelope[CrawlStatus]     `json:"Crawl,omitempty"`
	ETL       *Envelope[ETLStatus]       `json:"ETL,omitempty"`
	Processed *Envelope[ProcessedStatus] `json:"Processed,omitempty"`
}

// ErrorMessage returns the first failure recorded in the state, if any.
func (s DailyState) ErrorMessage() string {
	switch {
	case s.Crawl != nil && s.Crawl.Payload.CrawlerFailure:
		return s.Crawl.Payload.ErrorMessage
	case s.ETL != nil && s.ETL.Payload.ETLFailure:
		return s.ETL.Payload.ErrorMessage
	case s.Processed != nil && s.Processed.Payload.ProcessedCrawlerFailure:
		return s.Processed.Payload.ErrorMessage
	}
	return ""
}

// QueryState is the document passed between the monthly report's steps.
type QueryState struct {
	Month            string `json:"Month,omitempty"`
	QueryExecutionID string `json:"QueryExecutionId,omitempty"`
	AthenaComplete   bool   `json:"AthenaComplete"`
	AthenaFailure    bool   `json:"AthenaFailure"`
	ErrorMessage     string `json:"ErrorMessage,omitempty"`
	PreSignedURL     string `json:"PreSignedUrl,omitempty"`
}

// SendResult is returned by the notification steps.
type SendResult struct {
	MessageID string `json:"MessageId"`
	Subject   string `json:"Subject"`
	Message   string `json:"Message"`
}

func sendResult(id string, n domain.Notification) SendResult {
	return SendResult{MessageID: id, Subject: n.Subject, Message: n.Message}
}
