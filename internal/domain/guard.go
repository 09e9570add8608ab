package domain

// GuardResult captures the outcome of an in-process guard check.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"` // which guard blocked
}
