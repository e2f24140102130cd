package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"api-gateway-go/internal/model"
)

var errMalformedJSON = errors.New("malformed JSON body")

// ErrReadRequestBody wraps a failure to read the inbound body at all, such as
// the body size limit being hit mid-stream. Unlike a parse failure it must
// fail the request.
var ErrReadRequestBody = errors.New("read request body")

// errBodyTooLarge is returned when an upstream body exceeds its size cap,
// before or after content decoding.
var errBodyTooLarge = errors.New("body exceeds size limit")

// DecodeRequestBody reads an inbound body according to its content type.
// GET and HEAD bodies are never read. On error the returned body is absent.
// Parse failures leave the request to proceed without a body; errors
// wrapping ErrReadRequestBody do not.
func DecodeRequestBody(method, contentType string, r io.Reader) (model.Body, error) {
	if method == http.MethodGet || method == http.MethodHead || r == nil {
		return model.Body{}, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return model.Body{}, fmt.Errorf("%w: %w", ErrReadRequestBody, err)
	}
	if len(data) == 0 {
		return model.Body{}, nil
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "application/json"):
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return model.Body{}, fmt.Errorf("%w: %w", errMalformedJSON, err)
		}
		return model.Body{Kind: model.BodyJSON, Data: buf.Bytes()}, nil
	case strings.Contains(ct, "multipart/form-data"):
		parts, err := countParts(contentType, data)
		if err != nil {
			return model.Body{}, fmt.Errorf("read multipart body: %w", err)
		}
		return model.Body{Kind: model.BodyMultipart, Data: data, Parts: parts}, nil
	default:
		// application/x-www-form-urlencoded and anything unrecognised.
		return model.Body{Kind: model.BodyText, Data: data}, nil
	}
}

// countParts checks that data is well-formed multipart and returns the number
// of parts. The raw bytes are what gets forwarded, so the boundary in the
// client's Content-Type stays valid upstream.
func countParts(contentType string, data []byte) (int, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return 0, err
	}
	boundary := params["boundary"]
	if boundary == "" {
		return 0, errors.New("missing boundary")
	}

	mr := multipart.NewReader(bytes.NewReader(data), boundary)
	n := 0
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return 0, err
		}
		if _, err := io.Copy(io.Discard, p); err != nil {
			return 0, err
		}
		n++
	}
}

// DecodeResponseBody undoes any Content-Encoding on an upstream body and
// classifies it as JSON text or opaque binary. Either way the bytes are
// relayed unchanged. decoded is false when an encoding is not supported, in
// which case data is the original encoded payload. The decoded size is
// capped at maxBytes.
func DecodeResponseBody(header http.Header, data []byte, maxBytes int64) (body model.Body, decoded bool, err error) {
	data, decoded, err = decodeContent(header.Values("Content-Encoding"), data, maxBytes)
	if err != nil {
		return model.Body{}, false, err
	}

	if len(data) == 0 {
		return model.Body{}, decoded, nil
	}
	kind := model.BodyBinary
	if strings.Contains(strings.ToLower(header.Get("Content-Type")), "application/json") {
		kind = model.BodyJSON
	}
	return model.Body{Kind: kind, Data: data}, decoded, nil
}

// decodeContent reverses the listed content codings, last applied first.
func decodeContent(values []string, data []byte, maxBytes int64) ([]byte, bool, error) {
	var codings []string
	for _, v := range values {
		for _, c := range strings.Split(v, ",") {
			c = strings.ToLower(strings.TrimSpace(c))
			if c != "" && c != "identity" {
				codings = append(codings, c)
			}
		}
	}
	if len(codings) == 0 || len(data) == 0 {
		return data, true, nil
	}
	for _, c := range codings {
		if !supportedCodings[c] {
			return data, false, nil
		}
	}

	out := data
	for i := len(codings) - 1; i >= 0; i-- {
		var err error
		out, err = decodeOne(codings[i], out, maxBytes)
		if err != nil {
			return nil, false, fmt.Errorf("decode %s body: %w", codings[i], err)
		}
	}
	return out, true, nil
}

var supportedCodings = map[string]bool{
	"gzip":    true,
	"x-gzip":  true,
	"deflate": true,
	"br":      true,
	"zstd":    true,
}

func decodeOne(coding string, data []byte, maxBytes int64) ([]byte, error) {
	switch coding {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer func() { _ = zr.Close() }()
		return readLimited(zr, maxBytes)
	case "deflate":
		// RFC 9110 deflate is zlib-wrapped, but raw deflate is common in the wild.
		if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
			defer func() { _ = zr.Close() }()
			return readLimited(zr, maxBytes)
		}
		fr := flate.NewReader(bytes.NewReader(data))
		defer func() { _ = fr.Close() }()
		return readLimited(fr, maxBytes)
	case "br":
		return readLimited(brotli.NewReader(bytes.NewReader(data)), maxBytes)
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return readLimited(zr, maxBytes)
	default:
		return nil, fmt.Errorf("unsupported content coding %q", coding)
	}
}

// readLimited reads r to EOF, failing with errBodyTooLarge past maxBytes.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", errBodyTooLarge, maxBytes)
	}
	return data, nil
}
