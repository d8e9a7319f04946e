package api

// Roles recognised on a Principal.
const (
	RoleEmployer = "employer"
	RoleAdmin    = "admin"
)

// Principal is the caller as resolved by the authentication layer.
type Principal struct {
	EmployerID string
	Role       string
	Email      string
}

// CheckoutRequest is the body of POST /api/billing/checkout.
type CheckoutRequest struct {
	JobID string `json:"job_id"`
	// EmployerID lets admins start a checkout on behalf of an employer.
	EmployerID string `json:"employer_id,omitempty"`
}

// ReindexResponse is returned by POST /api/search/reindex.
type ReindexResponse struct {
	Indexed int `json:"indexed"`
}
