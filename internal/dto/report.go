package dto

import "time"

// ReportDownloadResponse carries a time-limited PDF link.
type ReportDownloadResponse struct {
	ReportID  string    `json:"reportId"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}
