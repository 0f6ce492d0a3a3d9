package handlers

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"

	"github.com/upb/threatprofile-gateway/utils"
)

// NewPageProxy forwards permitted page requests to the dashboard frontend.
// Guarding happens before the proxy; it forwards whatever reaches it.
func NewPageProxy(frontEndURL string, logger *zap.Logger) (http.Handler, error) {
	target, err := url.Parse(frontEndURL)
	if err != nil {
		return nil, fmt.Errorf("parse front end url: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("front end url %q must be absolute", frontEndURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		r.Host = target.Host
		// the frontend never needs the session
		r.Header.Del("Cookie")
	}
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Warn("front end unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		_ = utils.WriteBadGateway(w, "Dashboard unavailable")
	}
	return proxy, nil
}
