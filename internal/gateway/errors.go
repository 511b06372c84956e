package gateway

import (
	"errors"
	"fmt"
	"net/http"

	"reasongate-gateway/internal/llm"
)

// HeaderMissingError reports a required credential header that was not sent.
type HeaderMissingError struct {
	Header string
}

func (e *HeaderMissingError) Error() string {
	return fmt.Sprintf("missing required header: %s", e.Header)
}

// BadRequestError reports a malformed request.
type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return "bad request: " + e.Message
}

// BadRequestf builds a BadRequestError.
func BadRequestf(format string, args ...any) error {
	return &BadRequestError{Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidSystemPrompt     = errors.New("system prompt can only be provided once, either in root or messages array")
	ErrMissingReasoningContent = errors.New("no reasoning content in provider A response")
)

// Error type identifiers used in JSON error bodies.
const (
	TypeHeaderMissing           = "header_missing"
	TypeBadRequest              = "bad_request"
	TypeInvalidSystemPrompt     = "invalid_system_prompt"
	TypeMissingReasoningContent = "missing_reasoning_content"
	TypeUpstreamError           = "upstream_error"
	TypeInternalError           = "internal_error"
)

// HTTPStatus maps an error of the taxonomy to the status of the response.
func HTTPStatus(err error) int {
	var hm *HeaderMissingError
	var br *BadRequestError
	var ue *llm.UpstreamError
	switch {
	case errors.As(err, &hm), errors.As(err, &br), errors.Is(err, ErrInvalidSystemPrompt):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingReasoningContent), errors.As(err, &ue):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorDetail is the payload of a JSON error body.
type ErrorDetail struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Header   string `json:"header,omitempty"`
	Provider string `json:"provider,omitempty"`
	Code     int    `json:"code,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// NewErrorResponse describes err for the caller. Errors outside the taxonomy
// are reported without their internal message.
func NewErrorResponse(err error) ErrorResponse {
	var (
		hm *HeaderMissingError
		br *BadRequestError
		ue *llm.UpstreamError
	)
	switch {
	case errors.As(err, &hm):
		return ErrorResponse{ErrorDetail{Type: TypeHeaderMissing, Message: hm.Error(), Header: hm.Header}}
	case errors.As(err, &br):
		return ErrorResponse{ErrorDetail{Type: TypeBadRequest, Message: br.Message}}
	case errors.Is(err, ErrInvalidSystemPrompt):
		return ErrorResponse{ErrorDetail{Type: TypeInvalidSystemPrompt, Message: ErrInvalidSystemPrompt.Error()}}
	case errors.Is(err, ErrMissingReasoningContent):
		return ErrorResponse{ErrorDetail{Type: TypeMissingReasoningContent, Message: ErrMissingReasoningContent.Error()}}
	case errors.As(err, &ue):
		return ErrorResponse{ErrorDetail{Type: TypeUpstreamError, Message: ue.Message, Provider: ue.Provider, Code: ue.Code}}
	default:
		return ErrorResponse{ErrorDetail{Type: TypeInternalError, Message: "internal server error"}}
	}
}
