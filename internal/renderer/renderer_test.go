package renderer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyHeaders(t *testing.T) {
	h := http.Header{}
	ApplyHeaders(h, "dev1:abcde-123-cafebabecafe")

	assert.Equal(t, "public, max-age=0, must-revalidate", h.Get("cache-control"))
	assert.Equal(t, "now", h.Get("server"))
	assert.Equal(t, "dev1", h.Get("x-now-trace"))
	assert.Equal(t, "dev1:abcde-123-cafebabecafe", h.Get("x-now-id"))
	assert.Equal(t, "MISS", h.Get("x-now-cache"))
}

func TestNegotiate(t *testing.T) {
	testCases := []struct {
		accept string
		want   Format
	}{
		{"application/json", FormatJSON},
		{"application/json, text/html", FormatJSON},
		{"text/html,application/xhtml+xml", FormatHTML},
		{"text/plain", FormatPlain},
		{"", FormatPlain},
		{"*/*", FormatPlain},
	}

	for _, tc := range testCases {
		t.Run(tc.accept, func(t *testing.T) {
			assert.Equal(t, tc.want, Negotiate(tc.accept))
		})
	}
}

func TestRenderErrorJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()

	RenderError(w, r, http.StatusNotFound, "FILE_NOT_FOUND", "the page could not be found", "rid")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("content-type"), "application/json")

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "FILE_NOT_FOUND", body.Error.Code)
}

func TestRenderErrorHTML(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()

	RenderError(w, r, http.StatusNotFound, "FILE_NOT_FOUND", "the page could not be found", "rid")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("content-type"), "text/html")
	assert.Contains(t, w.Body.String(), "404")
	assert.Contains(t, w.Body.String(), "FILE_NOT_FOUND")
}

func TestRenderErrorPlain(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()

	RenderError(w, r, http.StatusBadGateway, "NO_STATUS_CODE_FROM_LAMBDA", "boom", "rid")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Header().Get("content-type"), "text/plain")
	assert.Contains(t, w.Body.String(), "NO_STATUS_CODE_FROM_LAMBDA")
}

func TestRenderErrorTemplatesDiffer(t *testing.T) {
	render := func(status int) string {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Accept", "text/html")
		w := httptest.NewRecorder()
		RenderError(w, r, status, "CODE", "msg", "rid")

		return w.Body.String()
	}

	notFound := render(http.StatusNotFound)
	badGateway := render(http.StatusBadGateway)
	generic := render(http.StatusInternalServerError)

	assert.Contains(t, notFound, "could not be found")
	assert.Contains(t, badGateway, "502")
	assert.Contains(t, generic, "500")
	assert.NotEqual(t, notFound, badGateway)
	assert.NotEqual(t, badGateway, generic)
}

func TestRenderRedirect(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/old", nil)
	r.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()

	RenderRedirect(w, r, "/new", http.StatusMovedPermanently, "rid")

	assert.Equal(t, http.StatusMovedPermanently, w.Code)
	assert.Equal(t, "/new", w.Header().Get("location"))
	assert.Contains(t, w.Body.String(), "/new")
}

func TestRenderListing(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()

	RenderListing(w, r, "/", []ListingEntry{
		{Name: "b.html", Path: "/b.html"},
		{Name: "a.html", Path: "/a.html"},
	}, "rid")

	var body struct {
		Files []ListingEntry `json:"files"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Files, 2)
	assert.Equal(t, "a.html", body.Files[0].Name, "entries are sorted")
}
