package pipeline

import "fmt"

// AppError is the caller-visible error shape for every hard failure in
// the pipeline. Details carries the complete diagnostic set: an aborted
// or blocked run always surfaces every defect, never just the first.
type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field    string `json:"field,omitempty"`
	Rule     string `json:"rule,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func RuleSetNotFoundError(regulator, reportType string) *AppError {
	return &AppError{
		Code:    "RULESET_NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("No rule set covers the requested period for %s/%s", regulator, reportType),
	}
}

func OverlappingRuleSetError(msg string) *AppError {
	return &AppError{
		Code:    "OVERLAPPING_RULESET",
		Status:  409,
		Message: msg,
	}
}

// BlockedByValidationError carries every blocking failure so the caller
// can present a complete remediation list in one pass.
func BlockedByValidationError(failures []Verdict) *AppError {
	details := make([]ErrorDetail, len(failures))
	for i, v := range failures {
		details[i] = ErrorDetail{
			Field:    v.Field,
			Rule:     v.RuleVersion,
			Severity: v.Severity,
			Message:  v.Message,
		}
	}
	return &AppError{
		Code:    "BLOCKED_BY_VALIDATION",
		Status:  422,
		Message: fmt.Sprintf("Report blocked by %d validation failure(s)", len(failures)),
		Details: details,
	}
}

func EncodingUnsupportedTypeError(encoding, field, fieldType string) *AppError {
	return &AppError{
		Code:    "ENCODING_UNSUPPORTED_TYPE",
		Status:  422,
		Message: fmt.Sprintf("Encoding %s does not support type %s (field %s)", encoding, fieldType, field),
	}
}

func UnknownEncodingError(encoding string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_ENCODING",
		Status:  400,
		Message: fmt.Sprintf("Unknown target encoding: %s", encoding),
	}
}

func InvalidStateError(from, to State) *AppError {
	return &AppError{
		Code:    "INVALID_STATE",
		Status:  409,
		Message: fmt.Sprintf("Illegal run transition %s -> %s", from, to),
	}
}
