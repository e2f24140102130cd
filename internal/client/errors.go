package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"

	"api-gateway-go/internal/model"
)

// Sentinel errors wrapped around transport failures so callers can classify
// them with errors.Is.
var (
	// ErrTimeout indicates the upstream did not answer within the endpoint budget.
	ErrTimeout = errors.New("upstream timed out")

	// ErrUnreachable indicates a network-level failure: DNS, connect or TLS.
	ErrUnreachable = errors.New("upstream unreachable")

	// ErrResponseTooLarge indicates the upstream body exceeded the endpoint cap.
	ErrResponseTooLarge = errors.New("upstream response too large")
)

// classify wraps err with the sentinel matching its failure class and returns
// the corresponding kind. ctx is the per-call context carrying the deadline.
func classify(ctx context.Context, err error) (model.FailureKind, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return model.Timeout, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return model.UpstreamError, err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.Timeout, fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	if isNetworkError(err) {
		return model.UpstreamUnreachable, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return model.UpstreamError, err
}

func isNetworkError(err error) bool {
	var (
		dnsErr     *net.DNSError
		opErr      *net.OpError
		verifyErr  *tls.CertificateVerificationError
		recordErr  tls.RecordHeaderError
		authErr    x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	return errors.As(err, &dnsErr) ||
		errors.As(err, &opErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
