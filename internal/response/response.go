// Package response renders engine failures as the structured error
// payloads AWS Config expects: customer errors for problems the account
// operator can fix (bad parameters, missing permissions) and internal
// errors for everything else. No failure crosses the outer boundary as a
// bare error or panic.
package response

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"

	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/attachment"
	"github.com/pankaj-dahiya-devops/iam-policy-guard/internal/ruleparams"
)

// ErrorResponse is the structured error payload returned instead of an
// evaluation set when an invocation fails.
type ErrorResponse struct {
	InternalErrorMessage string `json:"internalErrorMessage"`
	InternalErrorDetails string `json:"internalErrorDetails,omitempty"`
	CustomerErrorMessage string `json:"customerErrorMessage,omitempty"`
	CustomerErrorCode    string `json:"customerErrorCode,omitempty"`
}

// Internal reports whether the failure is internal (operator cannot fix
// it) as opposed to a customer configuration or permission problem.
func (r *ErrorResponse) Internal() bool {
	return r.CustomerErrorCode == "" || r.CustomerErrorCode == "InternalError"
}

// NewInternalError builds an internal error payload.
func NewInternalError(message, details string) *ErrorResponse {
	return &ErrorResponse{
		InternalErrorMessage: message,
		InternalErrorDetails: details,
		CustomerErrorMessage: "InternalError",
		CustomerErrorCode:    "InternalError",
	}
}

// NewCustomerError builds a customer-facing error payload.
func NewCustomerError(message, details, code, customerMessage string) *ErrorResponse {
	return &ErrorResponse{
		InternalErrorMessage: message,
		InternalErrorDetails: details,
		CustomerErrorMessage: customerMessage,
		CustomerErrorCode:    code,
	}
}

// FromError maps any engine failure onto the error payload taxonomy:
//
//   - invalid rule configuration: customer error, InvalidParameterValueException
//   - malformed resource / unsupported resource type: internal error
//   - execution role assumption denied: customer error naming the missing
//     assume-role permission
//   - collaborator access denied: customer error with the message scrubbed
//     of account-internal detail
//   - collaborator 5xx or service fault: internal error
//   - any other collaborator API error: customer error with the service's
//     own code and message
//   - anything else: internal error
func FromError(err error) *ErrorResponse {
	switch {
	case errors.Is(err, ruleparams.ErrInvalidConfiguration):
		return NewCustomerError(
			"Parameter value is invalid",
			"A validation error occurred while checking the rule parameters",
			"InvalidParameterValueException",
			err.Error(),
		)
	case errors.Is(err, attachment.ErrUnsupportedResourceType):
		return NewInternalError("Unsupported resource type", err.Error())
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if isInternalAPIError(apiErr) {
			return NewInternalError("Unexpected error while completing API request", err.Error())
		}
		if isAccessDenied(apiErr) {
			message := "Access denied while making an API request on the customer's behalf."
			if isAssumeRoleError(err) {
				message = "AWS Config does not have permission to assume the IAM role."
			}
			return NewCustomerError(
				"Customer error while making API request",
				err.Error(),
				apiErr.ErrorCode(),
				message,
			)
		}
		return NewCustomerError(
			"Customer error while making API request",
			err.Error(),
			apiErr.ErrorCode(),
			apiErr.ErrorMessage(),
		)
	}

	return NewInternalError("Unexpected error during evaluation", err.Error())
}

// isAssumeRoleError reports whether the failure originated in the STS
// AssumeRole call backing the execution-role credentials. The assume-role
// provider is lazy, so the failure surfaces wrapped inside the first
// service call that needed credentials.
func isAssumeRoleError(err error) bool {
	var opErr *smithy.OperationError
	return errors.As(err, &opErr) && opErr.ServiceID == "STS" && opErr.OperationName == "AssumeRole"
}

// isAccessDenied matches authorization failures across the IAM, Config,
// and STS surfaces.
func isAccessDenied(apiErr smithy.APIError) bool {
	code := apiErr.ErrorCode()
	return strings.Contains(code, "AccessDenied") || strings.Contains(code, "UnauthorizedOperation")
}

// isInternalAPIError matches service faults that the customer cannot act
// on: server-side fault classification, 5xx-style codes, and generic
// internal or service errors.
func isInternalAPIError(apiErr smithy.APIError) bool {
	if apiErr.ErrorFault() == smithy.FaultServer {
		return true
	}
	code := apiErr.ErrorCode()
	return strings.HasPrefix(code, "5") ||
		strings.Contains(code, "InternalError") ||
		strings.Contains(code, "ServiceError")
}
