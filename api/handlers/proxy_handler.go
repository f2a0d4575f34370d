package handlers

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProxyPrefix is stripped from proxied request paths
const ProxyPrefix = "/api"

// ProxyHandler forwards /api/* requests to the download backend
type ProxyHandler struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
	logger *zap.Logger
}

// NewProxyHandler creates a proxy to backendURL
func NewProxyHandler(backendURL string, log *zap.Logger) (*ProxyHandler, error) {
	target, err := url.Parse(backendURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid backend url: %q", backendURL)
	}

	h := &ProxyHandler{target: target, logger: log}
	h.proxy = &httputil.ReverseProxy{
		Rewrite:        h.rewrite,
		ErrorHandler:   h.handleError,
		ModifyResponse: h.logResponse,
		FlushInterval:  100 * time.Millisecond,
	}
	return h, nil
}

// Target returns the backend URL
func (h *ProxyHandler) Target() string {
	return h.target.String()
}

// rewrite strips the prefix, keeps the query and points Host at the backend
func (h *ProxyHandler) rewrite(r *httputil.ProxyRequest) {
	r.Out.URL.Path = stripPrefix(r.In.URL.Path)
	r.Out.URL.RawPath = ""
	if r.In.URL.RawPath != "" {
		r.Out.URL.RawPath = stripPrefix(r.In.URL.RawPath)
	}
	r.SetURL(h.target)
	r.SetXForwarded()

	h.logger.Debug("Proxying request",
		zap.String("method", r.In.Method),
		zap.String("from", r.In.URL.RequestURI()),
		zap.String("to", r.Out.URL.String()))
}

func stripPrefix(path string) string {
	trimmed := strings.TrimPrefix(path, ProxyPrefix)
	if trimmed == "" || trimmed[0] != '/' {
		trimmed = "/" + trimmed
	}
	return trimmed
}

func (h *ProxyHandler) logResponse(resp *http.Response) error {
	h.logger.Debug("Proxied response",
		zap.String("method", resp.Request.Method),
		zap.String("url", resp.Request.URL.String()),
		zap.Int("status", resp.StatusCode))
	return nil
}

func (h *ProxyHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("Proxy error",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":"Proxy error","message":"Failed to connect to backend server"}`))
}

// Forward handles ANY /api/*path
func (h *ProxyHandler) Forward(c *gin.Context) {
	h.proxy.ServeHTTP(c.Writer, c.Request)
}
