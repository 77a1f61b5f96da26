package notify

import (
	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/domain"
)

const (
	subjectFailure  = "Error Processing CDRs"
	subjectComplete = "Processing CDRs Complete"
	reportPreamble  = "Please open the following link to view the generated CDR report. "
)

// Failure is the notification sent when any step of a workflow fails.
func Failure(errMsg string) domain.Notification {
	return domain.Notification{
		Subject: subjectFailure,
		Message: "Error Processing:  " + errMsg,
	}
}

// ProcessingResult reports the outcome of a daily run for date. A non-empty
// errMsg selects the failure text.
func ProcessingResult(date, runID, errMsg string) domain.Notification {
	if errMsg != "" {
		return Failure(errMsg)
	}
	msg := "CDR Processing Complete:  " + date
	if runID != "" {
		msg += " (run " + runID + ")"
	}
	return domain.Notification{Subject: subjectComplete, Message: msg}
}

// QueryReport reports the outcome of a report query, linking to its results.
func QueryReport(link, errMsg string) domain.Notification {
	if errMsg != "" {
		return Failure(errMsg)
	}
	return domain.Notification{
		Subject: subjectComplete,
		Message: "CDR Processing Complete:  " + link,
		Link:    link,
	}
}

// ReportLink announces a report object that has just been written.
func ReportLink(link string) domain.Notification {
	return domain.Notification{
		Message: reportPreamble + link,
		Link:    link,
	}
}
