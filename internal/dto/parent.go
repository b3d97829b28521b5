package dto

// LinkChildRequest links an existing student account to the calling parent.
type LinkChildRequest struct {
	StudentEmail string `json:"studentEmail" validate:"required,email"`
}
