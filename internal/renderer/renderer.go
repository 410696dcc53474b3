// Package renderer produces the dev server's error, redirect, and
// directory-listing responses, content-negotiated against the Accept
// header, and stamps the platform-identifying headers every response
// carries.
package renderer

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strings"
)

// Trace region reported on every response.
const traceValue = "dev1"

// ApplyHeaders sets the headers every response carries.
func ApplyHeaders(h http.Header, requestID string) {
	h.Set("cache-control", "public, max-age=0, must-revalidate")
	h.Set("server", "now")
	h.Set("x-now-trace", traceValue)
	h.Set("x-now-id", requestID)
	h.Set("x-now-cache", "MISS")
}

// Format is a negotiated response body format.
type Format int

const (
	FormatPlain Format = iota
	FormatJSON
	FormatHTML
)

// Negotiate picks a body format from the Accept header: JSON wins over
// HTML, anything else is plaintext.
func Negotiate(accept string) Format {
	accept = strings.ToLower(accept)
	switch {
	case strings.Contains(accept, "application/json"):
		return FormatJSON
	case strings.Contains(accept, "text/html"):
		return FormatHTML
	default:
		return FormatPlain
	}
}

// errorBody is the JSON error shape.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RenderError writes a content-negotiated error response.
func RenderError(w http.ResponseWriter, r *http.Request, status int, code, message, requestID string) {
	ApplyHeaders(w.Header(), requestID)

	switch Negotiate(r.Header.Get("Accept")) {
	case FormatJSON:
		w.Header().Set("content-type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		var body errorBody
		body.Error.Code = code
		body.Error.Message = message
		json.NewEncoder(w).Encode(body)
	case FormatHTML:
		w.Header().Set("content-type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		errorTemplate(status).Execute(w, map[string]interface{}{
			"Status":    status,
			"Code":      code,
			"Message":   message,
			"RequestID": requestID,
		})
	default:
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, "%s: %s\n", code, message)
	}
}

// RenderRedirect writes a content-negotiated redirect response.
func RenderRedirect(w http.ResponseWriter, r *http.Request, location string, status int, requestID string) {
	ApplyHeaders(w.Header(), requestID)
	w.Header().Set("location", location)

	switch Negotiate(r.Header.Get("Accept")) {
	case FormatJSON:
		w.Header().Set("content-type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"redirect": location, "status": http.StatusText(status)})
	case FormatHTML:
		w.Header().Set("content-type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		redirectTmpl.Execute(w, map[string]interface{}{
			"Location": location,
			"Status":   status,
		})
	default:
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		fmt.Fprintf(w, "Redirecting to %s (%d)\n", location, status)
	}
}

// ListingEntry is one row of a directory listing.
type ListingEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// RenderListing writes a directory listing built from routable
// entrypoints.
func RenderListing(w http.ResponseWriter, r *http.Request, dir string, entries []ListingEntry, requestID string) {
	ApplyHeaders(w.Header(), requestID)

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	switch Negotiate(r.Header.Get("Accept")) {
	case FormatJSON:
		w.Header().Set("content-type", "application/json; charset=utf-8")
		json.NewEncoder(w).Encode(map[string]interface{}{"directory": dir, "files": entries})
	case FormatHTML:
		w.Header().Set("content-type", "text/html; charset=utf-8")
		listingTmpl.Execute(w, map[string]interface{}{
			"Dir":     dir,
			"Entries": entries,
		})
	default:
		w.Header().Set("content-type", "text/plain; charset=utf-8")
		for _, e := range entries {
			fmt.Fprintln(w, e.Path)
		}
	}
}

func errorTemplate(status int) *template.Template {
	switch status {
	case http.StatusNotFound:
		return notFoundTmpl
	case http.StatusBadGateway:
		return badGatewayTmpl
	default:
		return genericErrorTmpl
	}
}
