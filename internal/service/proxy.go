// Package service implements the request-forwarding pipeline: service
// resolution, body decoding, header filtering, dispatch and response
// preparation.
package service

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"api-gateway-go/internal/client"
	"api-gateway-go/internal/model"
	"api-gateway-go/internal/registry"
)

// Tracing headers set on every proxied response.
const (
	HeaderRequestID  = "X-Request-Id"
	HeaderProxiedBy  = "X-Proxied-By"
	proxiedByGateway = "api-gateway"
)

// ProxyService forwards requests to the upstream registered for their service.
type ProxyService struct {
	registry *registry.Registry
	client   *client.UpstreamClient
	logger   *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(reg *registry.Registry, c *client.UpstreamClient, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		registry: reg,
		client:   c,
		logger:   logger.With("component", "proxy_service"),
	}
}

// Forward resolves pr.Service, sends pr upstream and returns the response
// ready to relay: filtered headers, decoded body, tracing headers set.
//
// Any upstream status, 4xx and 5xx included, is a successful forward. A
// failure to read the inbound body is returned as is, wrapping
// ErrReadRequestBody and the reader's error (an *echo.HTTPError when the body
// limit was hit). Every other failure is a *ProxyError whose Kind tells the
// caller which status to answer with.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	ep, ok := s.registry.Resolve(pr.Service)
	if !ok {
		return nil, &ProxyError{
			Kind:      model.NotConfigured,
			Service:   pr.Service,
			RequestID: pr.RequestID,
			Err:       ErrNotConfigured,
		}
	}

	body, err := DecodeRequestBody(pr.Method, pr.Header.Get("Content-Type"), pr.Body)
	if errors.Is(err, ErrReadRequestBody) {
		s.logger.Warn("request body unreadable",
			"err", err,
			"service", pr.Service,
			"path", pr.TargetPath,
			"request_id", pr.RequestID,
		)
		return nil, err
	}
	if err != nil {
		s.logger.Warn("request body dropped",
			"err", err,
			"service", pr.Service,
			"path", pr.TargetPath,
			"request_id", pr.RequestID,
		)
	}

	header := FilterRequestHeaders(pr.Header)
	// Recomputed by the transport from the body actually sent.
	header.Del("Content-Length")
	header.Set(HeaderRequestID, pr.RequestID)

	s.logger.Debug("forwarding request",
		"service", ep.Name,
		"method", pr.Method,
		"path", pr.TargetPath,
		"body", body.Kind.String(),
		"body_bytes", len(body.Data),
		"parts", body.Parts,
		"request_id", pr.RequestID,
	)

	resp, err := s.client.Dispatch(pr.Ctx, ep, pr.Method, pr.TargetPath, header, body.Data)
	if err != nil {
		return nil, &ProxyError{
			Kind:      dispatchFailureKind(err),
			Service:   ep.Name,
			RequestID: pr.RequestID,
			Err:       err,
		}
	}

	return s.prepareResponse(pr, ep, resp)
}

func (s *ProxyService) prepareResponse(pr *model.ProxyRequest, ep model.ServiceEndpoint, resp *model.ProxyResponse) (*model.ProxyResponse, error) {
	body, decoded, err := DecodeResponseBody(resp.Header, resp.Body.Data, client.ResponseLimit(ep))
	if err != nil {
		return nil, &ProxyError{
			Kind:      model.UpstreamError,
			Service:   ep.Name,
			RequestID: pr.RequestID,
			Err:       err,
		}
	}

	header := FilterResponseHeaders(resp.Header)
	if !decoded {
		// Still encoded: the header must keep describing the body.
		header["Content-Encoding"] = resp.Header.Values("Content-Encoding")
		s.logger.Warn("relaying body with unsupported content encoding",
			"service", ep.Name,
			"encoding", resp.Header.Get("Content-Encoding"),
			"request_id", pr.RequestID,
		)
	}
	if pr.Method != http.MethodHead {
		header.Del("Content-Length")
		if bodyAllowedForStatus(resp.StatusCode) {
			header.Set("Content-Length", strconv.Itoa(len(body.Data)))
		}
	}
	header.Set(HeaderRequestID, pr.RequestID)
	header.Set(HeaderProxiedBy, proxiedByGateway)

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       body,
	}, nil
}

func dispatchFailureKind(err error) model.FailureKind {
	switch {
	case errors.Is(err, client.ErrTimeout):
		return model.Timeout
	case errors.Is(err, client.ErrUnreachable):
		return model.UpstreamUnreachable
	default:
		return model.UpstreamError
	}
}

// bodyAllowedForStatus reports whether a response with the given status may
// carry a body.
func bodyAllowedForStatus(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
