package dataverse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrDataverseAPI = errors.New("dataverse api")

type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindUnauthorized
	KindNotFound
	KindClient
	KindServer
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not found"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	case KindMalformed:
		return "malformed response"
	default:
		return "unknown"
	}
}

// APIError describes a failed call. Message holds the message Dataverse put in
// its error body, or the raw body when it could not be decoded.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("dataverse api %s error (%s): %s", e.Kind, e.URL, e.Message)
	}

	return fmt.Sprintf("dataverse api %s error (HTTP Status: %d): %s", e.Kind, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return ErrDataverseAPI
}

// UnsupportedMethodError is returned for any method other than GET, POST or PUT.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("request method %s not recognized", e.Method)
}

func kindForStatus(statusCode int) ErrorKind {
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return KindUnauthorized
	case statusCode == http.StatusNotFound:
		return KindNotFound
	case statusCode >= 500:
		return KindServer
	default:
		return KindClient
	}
}

// toAPIError builds an APIError from a non-success response body.
func toAPIError(statusCode int, url string, body []byte) *APIError {
	apiErr := &APIError{
		Kind:       kindForStatus(statusCode),
		StatusCode: statusCode,
		URL:        url,
		Message:    errorMessage(body),
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(statusCode)
	}

	return apiErr
}

func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Message) == 0 {
		return strings.TrimSpace(string(body))
	}

	var msg string
	if err := json.Unmarshal(env.Message, &msg); err == nil {
		return msg
	}

	return string(env.Message)
}

func malformed(statusCode int, url string, err error) *APIError {
	return &APIError{
		Kind:       KindMalformed,
		StatusCode: statusCode,
		URL:        url,
		Message:    fmt.Sprintf("unable to parse json response: %s", err),
	}
}
