package utils

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/Sriram-PR/sitemap-stats/pkg/models"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrFetchTimeout      = errors.New("request timed out")
	ErrConnection        = errors.New("connection error")
	ErrTLS               = errors.New("TLS error")
	ErrHTTPStatus        = errors.New("non-2xx HTTP status") // Wraps status code
	ErrResponseBodyRead  = errors.New("failed to read response body")
	ErrRequestCreation   = errors.New("failed to create HTTP request")
	ErrNotXML            = errors.New("body is not XML")
	ErrMalformedXML      = errors.New("malformed XML")         // Wraps decoder error
	ErrUnrecognizedRoot  = errors.New("unrecognized XML root") // Wraps root element name
	ErrUnparseableURL    = errors.New("unparseable URL")       // Wraps url.Parse error
	ErrConfigValidation  = errors.New("configuration validation error")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrSemaphoreCanceled = errors.New("cancelled waiting for a fetch slot")
)

// WrapErrorf wraps err with a formatted message, returning nil for a nil err
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// ReasonFor maps an error to the failure taxonomy reported in the failure ledger.
// Errors not wrapping a known sentinel are classified as network errors.
func ReasonFor(err error) models.FailureReason {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotXML):
		return models.ReasonNotXML
	case errors.Is(err, ErrMalformedXML):
		return models.ReasonMalformedXML
	case errors.Is(err, ErrUnrecognizedRoot):
		return models.ReasonUnrecognizedRoot
	case errors.Is(err, ErrUnparseableURL):
		return models.ReasonUnparseableURL
	case errors.Is(err, ErrHTTPStatus):
		return models.ReasonHTTPError
	case errors.Is(err, ErrFetchTimeout), errors.Is(err, ErrSemaphoreCanceled):
		return models.ReasonTimeout
	case errors.Is(err, ErrTLS):
		return models.ReasonTLSError
	case errors.Is(err, ErrConnection), errors.Is(err, ErrResponseBodyRead), errors.Is(err, ErrRequestCreation):
		return models.ReasonConnectionError
	}
	return ReasonFor(ClassifyNetworkError(err))
}

// FailureFrom converts an error into the tagged failure value stored in outcomes.
// The detail is the error message with the sentinel prefix removed.
func FailureFrom(err error) *models.Failure {
	if err == nil {
		return nil
	}
	if !wrapsSentinel(err) {
		err = ClassifyNetworkError(err)
	}

	detail := err.Error()
	for _, sentinel := range failureSentinels {
		if errors.Is(err, sentinel) {
			detail = strings.TrimPrefix(detail, sentinel.Error())
			detail = strings.TrimPrefix(detail, ": ")
			break
		}
	}
	return models.NewFailure(ReasonFor(err), detail)
}

// failureSentinels are the sentinels that map onto a FailureReason
var failureSentinels = []error{
	ErrNotXML, ErrMalformedXML, ErrUnrecognizedRoot, ErrUnparseableURL, ErrHTTPStatus,
	ErrFetchTimeout, ErrSemaphoreCanceled, ErrTLS, ErrConnection, ErrResponseBodyRead, ErrRequestCreation,
}

func wrapsSentinel(err error) bool {
	for _, sentinel := range failureSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// ClassifyNetworkError wraps an error returned by http.Client.Do (or a body read)
// with ErrFetchTimeout, ErrTLS or ErrConnection
func ClassifyNetworkError(err error) error {
	if err == nil {
		return nil
	}

	// Context and net timeouts
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrFetchTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrFetchTimeout, err)
	}

	// Certificate and handshake failures
	var unknownAuthErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var certInvalidErr x509.CertificateInvalidError
	var verifyErr *tls.CertificateVerificationError
	var recordErr tls.RecordHeaderError
	if errors.As(err, &unknownAuthErr) || errors.As(err, &hostnameErr) ||
		errors.As(err, &certInvalidErr) || errors.As(err, &verifyErr) || errors.As(err, &recordErr) {
		return fmt.Errorf("%w: %v", ErrTLS, err)
	}

	// Fallback on message substrings for wrapped transport errors
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout") || strings.Contains(lowerErrMsg, "deadline exceeded"):
		return fmt.Errorf("%w: %v", ErrFetchTimeout, err)
	case strings.Contains(lowerErrMsg, "tls") || strings.Contains(lowerErrMsg, "certificate") || strings.Contains(lowerErrMsg, "x509"):
		return fmt.Errorf("%w: %v", ErrTLS, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// CategorizeError maps an error to a predefined category string for logging/metrics.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	// Check against sentinel errors first
	switch {
	case errors.Is(err, ErrHTTPStatus):
		errMsg := err.Error()
		switch {
		case strings.Contains(errMsg, "status 404"):
			return "HTTP_404"
		case strings.Contains(errMsg, "status 403"):
			return "HTTP_403"
		case strings.Contains(errMsg, "status 429"):
			return "HTTP_429"
		case strings.Contains(errMsg, "status 5"):
			return "HTTP_5xx"
		case strings.Contains(errMsg, "status 4"):
			return "HTTP_4xx"
		}
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrFetchTimeout):
		return "Network_Timeout"
	case errors.Is(err, ErrTLS):
		return "Network_TLS"
	case errors.Is(err, ErrConnection):
		lowerErrMsg := strings.ToLower(err.Error())
		if strings.Contains(lowerErrMsg, "connection refused") {
			return "Network_ConnectionRefused"
		}
		if strings.Contains(lowerErrMsg, "no such host") {
			return "Network_DNSLookup"
		}
		if strings.Contains(lowerErrMsg, "reset by peer") {
			return "Network_ConnectionReset"
		}
		return "Network_Other"
	case errors.Is(err, ErrResponseBodyRead):
		return "Network_BodyRead"
	case errors.Is(err, ErrRequestCreation):
		return "Internal_RequestCreation"
	case errors.Is(err, ErrNotXML):
		return "Content_NotXML"
	case errors.Is(err, ErrMalformedXML):
		return "Content_MalformedXML"
	case errors.Is(err, ErrUnrecognizedRoot):
		return "Content_UnrecognizedRoot"
	case errors.Is(err, ErrUnparseableURL):
		return "Input_UnparseableURL"
	case errors.Is(err, ErrInvalidRequest):
		return "Input_InvalidRequest"
	case errors.Is(err, ErrSemaphoreCanceled):
		return "Resource_SemaphoreCanceled"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	// --- Fallback checks for common underlying error types/strings ---
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}

	return "Unknown"
}
