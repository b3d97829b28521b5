package dto

// RegisterSchoolRequest creates a SCHOOL_ADMIN user together with its school.
type RegisterSchoolRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,min=8"`
	FullName   string `json:"fullName" validate:"required"`
	SchoolName string `json:"schoolName" validate:"required"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state" validate:"required"`
	Phone      string `json:"phone"`
}

// RegisterParentRequest creates a PARENT user together with its parent profile.
type RegisterParentRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"fullName" validate:"required"`
	Phone    string `json:"phone"`
}

// RegisterStudentRequest creates a STUDENT user together with its student profile.
type RegisterStudentRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8"`
	FullName string  `json:"fullName" validate:"required"`
	Grade    int     `json:"grade" validate:"required,min=1,max=12"`
	Age      int     `json:"age" validate:"required,min=4,max=25"`
	Gender   string  `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	SchoolID *string `json:"schoolId,omitempty" validate:"omitempty,uuid"`
}

// RegisterResponse echoes the created account.
type RegisterResponse struct {
	UserID   string `json:"userId"`
	EntityID string `json:"entityId"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}
