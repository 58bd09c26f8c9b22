package authflow

import "fmt"

// Error codes surfaced in terminal callback responses.
const (
	CodeMissingAuthorizationCode = "flow.missing_authorization_code"
	CodeTokenExchangeFailed      = "flow.token_exchange_failed"
	CodeProfileFetchFailed       = "flow.profile_fetch_failed"
	CodeMutationFailed           = "flow.mutation_failed"
	CodeSessionPersistFailed     = "flow.session_persist_failed"
)

// FlowError is a terminal, user-visible callback failure. Body, when
// non-empty, carries a provider-reported error document to echo verbatim.
type FlowError struct {
	Stage  string
	Status int
	Code   string
	Body   []byte
	Err    error
}

func (flowError *FlowError) Error() string {
	if flowError.Err != nil {
		return fmt.Sprintf("%s (%s): %v", flowError.Code, flowError.Stage, flowError.Err)
	}
	return fmt.Sprintf("%s (%s)", flowError.Code, flowError.Stage)
}

// Unwrap exposes the underlying stage error.
func (flowError *FlowError) Unwrap() error {
	return flowError.Err
}
