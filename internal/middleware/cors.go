package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"api-gateway-go/internal/config"
)

// CORSPolicy decides the Access-Control-* headers for a request origin.
// It is built once from config and only read afterwards.
type CORSPolicy struct {
	wildcard bool
	exact    map[string]bool
	suffixes []string // from "*.example.com" entries, stored as ".example.com"
	methods  string
	headers  string
	maxAge   string
}

// NewCORSPolicy compiles the configured allow-lists.
func NewCORSPolicy(cfg config.CORSConfig) *CORSPolicy {
	p := &CORSPolicy{
		exact:   make(map[string]bool, len(cfg.AllowOrigins)),
		methods: strings.Join(cfg.AllowMethods, ","),
		headers: strings.Join(cfg.AllowHeaders, ","),
		maxAge:  strconv.Itoa(cfg.MaxAgeSeconds),
	}
	for _, o := range cfg.AllowOrigins {
		switch {
		case o == "*":
			p.wildcard = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			p.suffixes = append(p.suffixes, strings.ToLower(scheme+"://"+host))
		case strings.HasPrefix(o, "*."):
			p.suffixes = append(p.suffixes, strings.ToLower(o[1:]))
		default:
			p.exact[strings.ToLower(o)] = true
		}
	}
	return p
}

// AllowOrigin returns the Access-Control-Allow-Origin value for origin and
// whether it depends on the request origin (and so needs Vary: Origin).
// An empty value means the origin is not allowed.
func (p *CORSPolicy) AllowOrigin(origin string) (value string, vary bool) {
	if p.wildcard {
		return "*", false
	}
	if origin == "" {
		return "", false
	}
	if p.matches(strings.ToLower(origin)) {
		return origin, true
	}
	return "", true
}

func (p *CORSPolicy) matches(origin string) bool {
	if p.exact[origin] {
		return true
	}
	for _, s := range p.suffixes {
		if strings.Contains(s, "://") {
			// "https://.example.com": scheme must match, host must end in the suffix.
			scheme, suffix, _ := strings.Cut(s, "://")
			if rest, ok := strings.CutPrefix(origin, scheme+"://"); ok && len(rest) > len(suffix) && strings.HasSuffix(rest, suffix) {
				return true
			}
			continue
		}
		_, host, ok := strings.Cut(origin, "://")
		if ok && len(host) > len(s) && strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

// CORS returns an Echo middleware applying p. Every OPTIONS request is
// treated as a preflight and answered here with 200 and no body. Other
// requests continue down the chain and get the headers just before the
// status line is written, replacing any an upstream sent.
func CORS(p *CORSPolicy) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := c.Response()
			origin := c.Request().Header.Get(echo.HeaderOrigin)

			apply := func() {
				h := res.Header()
				value, vary := p.AllowOrigin(origin)
				if value != "" {
					h.Set(echo.HeaderAccessControlAllowOrigin, value)
				} else {
					h.Del(echo.HeaderAccessControlAllowOrigin)
				}
				if vary && !hasToken(h.Values(echo.HeaderVary), echo.HeaderOrigin) {
					h.Add(echo.HeaderVary, echo.HeaderOrigin)
				}
				h.Set(echo.HeaderAccessControlAllowMethods, p.methods)
				h.Set(echo.HeaderAccessControlAllowHeaders, p.headers)
			}

			if c.Request().Method == http.MethodOptions {
				apply()
				res.Header().Set(echo.HeaderAccessControlMaxAge, p.maxAge)
				return c.NoContent(http.StatusOK)
			}

			res.Before(apply)
			return next(c)
		}
	}
}

func hasToken(values []string, token string) bool {
	for _, v := range values {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}
