// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"
	"time"
)

// ServiceEndpoint is a resolved upstream service. Endpoints are built once at
// startup and never modified.
type ServiceEndpoint struct {
	Name    string
	BaseURL string
	Timeout time.Duration
	// MaxResponseBytes caps the upstream body, both as received and after
	// content decoding. Zero means the client default.
	MaxResponseBytes int64
}

// ProxyRequest represents one inbound call to be forwarded upstream.
type ProxyRequest struct {
	Ctx        context.Context
	Method     string
	Service    string
	TargetPath string // path plus raw query, already percent-encoded
	Header     http.Header
	Body       io.Reader // raw inbound body; nil when absent
	RequestID  string
}

// BodyKind describes how a body was read.
type BodyKind int

const (
	BodyAbsent BodyKind = iota
	BodyJSON
	BodyText
	BodyMultipart
	BodyBinary
)

func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyText:
		return "text"
	case BodyMultipart:
		return "multipart"
	case BodyBinary:
		return "binary"
	default:
		return "absent"
	}
}

// Body is a decoded request or response payload.
type Body struct {
	Kind BodyKind
	Data []byte
	// Parts is the number of form parts when Kind is BodyMultipart.
	Parts int
}

// ProxyResponse is a buffered upstream response ready to be relayed.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       Body
}

// FailureKind classifies why a request could not be forwarded.
type FailureKind int

const (
	NotConfigured FailureKind = iota + 1
	Timeout
	UpstreamUnreachable
	UpstreamError
)

func (k FailureKind) String() string {
	switch k {
	case NotConfigured:
		return "not_configured"
	case Timeout:
		return "timeout"
	case UpstreamUnreachable:
		return "upstream_unreachable"
	case UpstreamError:
		return "upstream_error"
	default:
		return "unknown"
	}
}
