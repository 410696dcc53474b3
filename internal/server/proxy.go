package server

import (
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"syscall"

	deverrors "github.com/nowdev/devserver/internal/errors"
	"github.com/nowdev/devserver/internal/renderer"
)

// proxy reverse-proxies the request to an absolute destination URL,
// preserving method, body, and headers, and adding the forwarding header
// set upstreams expect.
func (s *DevServer) proxy(w http.ResponseWriter, r *http.Request, dest, reqID string) {
	target, err := url.Parse(dest)
	if err != nil {
		renderer.RenderError(w, r, http.StatusBadGateway,
			deverrors.CodeBadGateway, "invalid proxy destination", reqID)
		return
	}

	originalHost := r.Host

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.URL.Path = target.Path
			if target.RawQuery != "" {
				if req.URL.RawQuery != "" {
					req.URL.RawQuery = target.RawQuery + "&" + req.URL.RawQuery
				} else {
					req.URL.RawQuery = target.RawQuery
				}
			}
			req.Host = target.Host

			headers := make(map[string]string)
			addForwardHeaders(headers, r, s.Address(), reqID)
			headers["x-forwarded-host"] = originalHost
			for name, value := range headers {
				req.Header.Set(name, value)
			}
			req.Header.Set("connection", "close")
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if isConnReset(err) {
				// A dropped client connection terminates only this
				// response.
				s.logger.Debug(r.Context(), "proxy connection reset", "path", r.URL.Path)
				return
			}

			s.logger.Error(r.Context(), err, "proxy error", "dest", dest)
			renderer.RenderError(w, r, http.StatusBadGateway,
				deverrors.CodeBadGateway, "an error occurred while proxying the request", reqID)
		},
	}

	renderer.ApplyHeaders(w.Header(), reqID)
	rp.ServeHTTP(w, r)
}

// addForwardHeaders populates the upstream header set added to proxied
// and invoked requests.
func addForwardHeaders(headers map[string]string, r *http.Request, deploymentURL, reqID string) {
	clientIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		clientIP = host
	}

	headers["x-forwarded-host"] = r.Host
	headers["x-forwarded-proto"] = "http"
	headers["x-forwarded-for"] = clientIP
	headers["x-real-ip"] = clientIP
	headers["x-now-trace"] = "dev1"
	headers["x-now-deployment-url"] = deploymentURL
	headers["x-now-id"] = reqID
	headers["x-now-log-id"] = reqID
	headers["x-zeit-co-forwarded-for"] = clientIP
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET)
}
