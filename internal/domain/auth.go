package domain

// SubjectType differentiates users vs staff tokens.
type SubjectType string

const (
	SubjectTypeUser  SubjectType = "USER"
	SubjectTypeStaff SubjectType = "STAFF"
)

// Actor identifies who performs a mutation. It is used for attribution only.
type Actor struct {
	UserID   string
	UserName string
	TenantID string
}
