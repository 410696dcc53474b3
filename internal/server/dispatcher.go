package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/nowdev/devserver/internal/builder"
	deverrors "github.com/nowdev/devserver/internal/errors"
	"github.com/nowdev/devserver/internal/match"
	"github.com/nowdev/devserver/internal/renderer"
	"github.com/nowdev/devserver/internal/router"
)

var multiSlashRe = regexp.MustCompile(`//+`)

// CollapseSlashes normalizes repeated slashes in a request path.
// Idempotent: applying it twice equals applying it once.
func CollapseSlashes(p string) string {
	return multiSlashRe.ReplaceAllString(p, "/")
}

// ServeHTTP is the request dispatcher entry point.
func (s *DevServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := s.newRequestID()
	ctx := r.Context()

	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error(ctx, nil, "panic in request handler", "panic", rec, "path", r.URL.Path)
			renderer.RenderError(w, r, http.StatusInternalServerError,
				deverrors.CodeInternal, "an internal error occurred", reqID)
		}
	}()

	if s.isStopping() {
		w.Header().Set("connection", "close")
		renderer.RenderError(w, r, http.StatusNotFound,
			deverrors.CodeFileNotFound, "the server is shutting down", reqID)
		return
	}

	s.logger.Debug(ctx, "request", "method", r.Method, "path", r.URL.Path, "id", reqID)

	// Repeated slashes redirect on GET; every other method is rewritten
	// in place and continues.
	if cleaned := CollapseSlashes(r.URL.Path); cleaned != r.URL.Path {
		if r.Method == http.MethodGet {
			location := cleaned
			if r.URL.RawQuery != "" {
				location += "?" + r.URL.RawQuery
			}
			renderer.RenderRedirect(w, r, location, http.StatusMovedPermanently, reqID)
			return
		}
		r.URL.Path = cleaned
	}

	if err := s.reconcile(ctx); err != nil {
		s.logger.Error(ctx, err, "reconcile failed")
		renderer.RenderError(w, r, http.StatusInternalServerError,
			deverrors.CodeInternal, "an internal error occurred", reqID)
		return
	}

	if err := s.scheduler.Wait(ctx); err != nil {
		return
	}

	s.serve(w, r, s.cfg.Routes, 0, reqID)
}

// serve routes and dispatches one request at the given recursion level.
// Level 1 is the per-build-result sub-route descent; it never recurses
// further.
func (s *DevServer) serve(w http.ResponseWriter, r *http.Request, routes []router.Rule, callLevel int, reqID string) {
	ctx := r.Context()

	result, err := router.Resolve(r.URL.Path, r.Method, routes, s.matches.HasAsset)
	if err != nil {
		s.logger.Error(ctx, err, "route resolution failed", "path", r.URL.Path)
		renderer.RenderError(w, r, http.StatusInternalServerError,
			deverrors.CodeInternal, "an internal error occurred", reqID)
		return
	}

	for name, value := range result.Headers {
		w.Header().Set(name, value)
	}

	dest := result.Dest
	if dest == "" {
		dest = r.URL.Path
	}

	if isExternal(dest) {
		s.proxy(w, r, dest, reqID)
		return
	}

	if result.Status == http.StatusMovedPermanently ||
		result.Status == http.StatusFound ||
		result.Status == http.StatusSeeOther {
		location := headerValue(result.Headers, "location")
		if location == "" {
			location = dest
		}
		renderer.RenderRedirect(w, r, location, result.Status, reqID)
		return
	}

	if len(result.URIArgs) > 0 {
		q := r.URL.Query()
		for name, values := range result.URIArgs {
			q[name] = values
		}
		r.URL.RawQuery = q.Encode()
	}

	assetPath := strings.TrimPrefix(dest, "/")

	m, key, found := s.lookupAsset(assetPath)

	if found {
		if _, ok := m.Asset(resolveAssetPath(m, assetPath)); !ok || noCacheRequested(r.Header) {
			if err := s.scheduler.Build(ctx, m, key, s.buildInput); err != nil {
				s.logger.Error(ctx, err, "on-demand build failed", "src", m.Src, "key", key)
			}
		}

		// Per-build-result sub-routes re-enter the dispatcher exactly
		// once.
		if res, ok := m.Result(key); ok && len(res.Routes) > 0 && callLevel == 0 {
			s.serve(w, r, res.Routes, 1, reqID)
			return
		}

		if asset, ok := m.Asset(resolveAssetPath(m, assetPath)); ok {
			s.serveAsset(w, r, asset, result.Status, reqID)
			return
		}
	}

	s.serveListing(w, r, assetPath, reqID)
}

// lookupAsset resolves the build match for a request path, trying the
// path itself and its index.html variant.
func (s *DevServer) lookupAsset(assetPath string) (*match.BuildMatch, string, bool) {
	for _, candidate := range assetCandidates(assetPath) {
		if m, key, ok := s.matches.Lookup(candidate, s.serveInput); ok {
			return m, key, true
		}
	}

	return nil, "", false
}

func assetCandidates(assetPath string) []string {
	if assetPath == "" {
		return []string{"index.html"}
	}
	if strings.HasSuffix(assetPath, "/") {
		return []string{path.Join(assetPath, "index.html")}
	}

	return []string{assetPath, assetPath + "/index.html"}
}

// resolveAssetPath picks the concrete published asset path for a request
// path, falling back to the index.html variant.
func resolveAssetPath(m *match.BuildMatch, assetPath string) string {
	for _, candidate := range assetCandidates(assetPath) {
		if _, ok := m.Asset(candidate); ok {
			return candidate
		}
	}

	return assetPath
}

// serveAsset dispatches on the asset variant.
func (s *DevServer) serveAsset(w http.ResponseWriter, r *http.Request, asset builder.Asset, status int, reqID string) {
	renderer.ApplyHeaders(w.Header(), reqID)

	switch a := asset.(type) {
	case builder.FileFsRef:
		http.ServeFile(w, r, a.FsPath)
	case builder.FileBlob:
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("content-type", contentType)
		w.Header().Set("content-length", strconv.Itoa(len(a.Data)))
		if status != 0 {
			w.WriteHeader(status)
		}
		w.Write(a.Data)
	case builder.Lambda:
		s.invoke(w, r, a, reqID)
	default:
		renderer.RenderError(w, r, http.StatusInternalServerError,
			deverrors.CodeInternal, "unknown asset type", reqID)
	}
}

// invoke runs a function asset through the invoke ABI and relays its
// result.
func (s *DevServer) invoke(w http.ResponseWriter, r *http.Request, lambda builder.Lambda, reqID string) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		renderer.RenderError(w, r, http.StatusInternalServerError,
			deverrors.CodeInternal, "reading request body failed", reqID)
		return
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ",")
	}
	headers["connection"] = "close"
	addForwardHeaders(headers, r, s.Address(), reqID)

	payload := builder.InvokePayload{
		Method:   r.Method,
		Host:     r.Host,
		Path:     r.URL.RequestURI(),
		Headers:  headers,
		Encoding: "base64",
		Body:     base64.StdEncoding.EncodeToString(body),
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		renderer.RenderError(w, r, http.StatusInternalServerError,
			deverrors.CodeInternal, "encoding invoke payload failed", reqID)
		return
	}

	raw, err := lambda.Fn.Invoke(ctx, &builder.InvokeRequest{
		Action: "Invoke",
		Body:   string(payloadJSON),
	})
	if err != nil {
		s.logger.Error(ctx, err, "lambda invocation failed", "path", r.URL.Path)
		renderer.RenderError(w, r, http.StatusBadGateway,
			deverrors.CodeNoStatusFromLambda, "an error occurred with your deployment", reqID)
		return
	}

	var res builder.InvokeResult
	if err := json.Unmarshal(raw, &res); err != nil || res.StatusCode == 0 {
		s.logger.Error(ctx, err, "lambda returned no status code", "path", r.URL.Path)
		renderer.RenderError(w, r, http.StatusBadGateway,
			deverrors.CodeNoStatusFromLambda, "an error occurred with your deployment", reqID)
		return
	}

	for name, value := range res.Headers {
		w.Header().Set(name, value)
	}

	respBody := []byte(res.Body)
	if res.Encoding == "base64" {
		decoded, derr := base64.StdEncoding.DecodeString(res.Body)
		if derr != nil {
			renderer.RenderError(w, r, http.StatusBadGateway,
				deverrors.CodeNoStatusFromLambda, "an error occurred with your deployment", reqID)
			return
		}
		respBody = decoded
	}

	w.WriteHeader(res.StatusCode)
	w.Write(respBody)
}

// serveListing renders a directory listing from routable entrypoints, or
// a 404 when the prefix routes nothing.
func (s *DevServer) serveListing(w http.ResponseWriter, r *http.Request, assetPath, reqID string) {
	prefix := assetPath
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	entrypoints := s.matches.Entrypoints(prefix)
	if len(entrypoints) == 0 {
		renderer.RenderError(w, r, http.StatusNotFound,
			deverrors.CodeFileNotFound, "the page could not be found", reqID)
		return
	}

	entries := make([]renderer.ListingEntry, 0, len(entrypoints))
	for _, e := range entrypoints {
		entries = append(entries, renderer.ListingEntry{
			Name: strings.TrimPrefix(e, prefix),
			Path: "/" + e,
		})
	}

	renderer.RenderListing(w, r, "/"+prefix, entries, reqID)
}

// noCacheRequested reports whether the client demanded a fresh build.
func noCacheRequested(h http.Header) bool {
	return strings.Contains(strings.ToLower(h.Get("pragma")), "no-cache") ||
		strings.Contains(strings.ToLower(h.Get("cache-control")), "no-cache")
}

func isExternal(dest string) bool {
	return strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://")
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}

	return ""
}
