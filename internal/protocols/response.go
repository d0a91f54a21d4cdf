package protocols

import (
	"fmt"
)

// ResponseType discriminates successful from failed responses.
type ResponseType string

const (
	ResponseSuccess ResponseType = "SUCCESS"
	ResponseError   ResponseType = "ERROR"
)

// Response is the normalized outcome of one request. It is a value: callers
// get their own copy and nothing changes it after Build.
type Response struct {
	Type ResponseType
	// Data is the parsed body of a successful response
	Data interface{}
	// StatusCode is zero when no response was received
	StatusCode int
	// Error is the parsed body of a failed response, or a message
	Error interface{}
	// ErrorCause is the error that prevented a response, if any
	ErrorCause error
}

// IsSuccess reports whether the response is of type SUCCESS.
func (r Response) IsSuccess() bool {
	return r.Type == ResponseSuccess
}

// ErrorMessage renders Error as a string.
func (r Response) ErrorMessage() string {
	switch e := r.Error.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		return fmt.Sprintf("%v", e)
	}
}

// ResponseBuilder assembles a Response.
type ResponseBuilder struct {
	response Response
}

// NewResponseBuilder starts a SUCCESS response.
func NewResponseBuilder() *ResponseBuilder {
	return &ResponseBuilder{response: Response{Type: ResponseSuccess}}
}

func (b *ResponseBuilder) WithData(data interface{}) *ResponseBuilder {
	b.response.Data = data
	return b
}

func (b *ResponseBuilder) WithStatusCode(code int) *ResponseBuilder {
	b.response.StatusCode = code
	return b
}

func (b *ResponseBuilder) WithType(t ResponseType) *ResponseBuilder {
	b.response.Type = t
	return b
}

// WithError marks the response as failed.
func (b *ResponseBuilder) WithError(e interface{}) *ResponseBuilder {
	b.response.Type = ResponseError
	b.response.Error = e
	return b
}

// WithErrorCause marks the response as failed and records why.
func (b *ResponseBuilder) WithErrorCause(err error) *ResponseBuilder {
	b.response.Type = ResponseError
	b.response.ErrorCause = err
	return b
}

func (b *ResponseBuilder) Build() Response {
	return b.response
}

// ErrorResponse is shorthand for a failed response carrying only a message and cause.
func ErrorResponse(message string, cause error) Response {
	return NewResponseBuilder().WithError(message).WithErrorCause(cause).Build()
}
