package dto

// RosterRow is one parsed CSV line of a roster import.
type RosterRow struct {
	FullName    string `validate:"required"`
	Email       string `validate:"required,email"`
	Grade       int    `validate:"min=1,max=12"`
	Age         int    `validate:"min=4,max=25"`
	Gender      string `validate:"omitempty,oneof=MALE FEMALE"`
	ParentEmail string `validate:"omitempty,email"`
}

// RosterRowError describes why one CSV row was rejected.
type RosterRowError struct {
	Row     int    `json:"row"`
	Email   string `json:"email,omitempty"`
	Message string `json:"message"`
}

// RosterImportResult summarises a roster import.
type RosterImportResult struct {
	Imported int              `json:"imported"`
	Failed   int              `json:"failed"`
	Errors   []RosterRowError `json:"errors"`
}
