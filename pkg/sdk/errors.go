package wayfind

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes returned by the service.
const (
	CodeBadRequest           = "bad_request"
	CodeUnauthorized         = "unauthorized"
	CodeNotFound             = "not_found"
	CodeUnknownDomain        = "unknown_domain"
	CodeRateLimited          = "rate_limited"
	CodeBudgetExhausted      = "budget_exhausted"
	CodeProviderError        = "provider_error"
	CodeRetrievalUnavailable = "retrieval_unavailable"
	CodeInternalError        = "internal_error"
)

// APIError is a structured error response from the service.
type APIError struct {
	Status  int    // HTTP status code
	Code    string // machine-readable error code
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("wayfind: %s (%d): %s", e.Code, e.Status, e.Message)
}

// IsNotFound reports whether err is a not-found API error.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound) || hasCode(err, CodeUnknownDomain)
}

// IsRateLimited reports whether err is a rate-limit or budget API error.
func IsRateLimited(err error) bool {
	return hasCode(err, CodeRateLimited) || hasCode(err, CodeBudgetExhausted)
}

func hasCode(err error, code string) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.Code == code
}

func apiErrorFrom(resp *http.Response) error {
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: CodeInternalError, Message: resp.Status}
	}
	return &APIError{Status: resp.StatusCode, Code: body.Error.Code, Message: body.Error.Message}
}
