package builder

import (
	"context"
	"os"
)

// Asset is a concrete servable unit produced by a build: an on-disk file
// reference, an in-memory blob, or an invocable function.
type Asset interface {
	isAsset()
}

// FileFsRef is an asset backed by a file on disk.
type FileFsRef struct {
	FsPath string
	Mode   os.FileMode
}

func (FileFsRef) isAsset() {}

// FileBlob is an in-memory asset.
type FileBlob struct {
	Data        []byte
	ContentType string
}

func (FileBlob) isAsset() {}

// Lambda is an invocable function artifact.
type Lambda struct {
	Fn      Invoker
	Handler string
	Runtime string
}

func (Lambda) isAsset() {}

// Invoker is the function ABI. The request wraps a JSON-encoded
// InvokePayload; the response bytes decode as an InvokeResult.
type Invoker interface {
	Invoke(ctx context.Context, req *InvokeRequest) ([]byte, error)
}

// InvokeRequest is the envelope handed to a function.
type InvokeRequest struct {
	Action string `json:"Action"`
	Body   string `json:"body"`
}

// InvokePayload is the JSON carried in InvokeRequest.Body.
type InvokePayload struct {
	Method   string            `json:"method"`
	Host     string            `json:"host"`
	Path     string            `json:"path"`
	Headers  map[string]string `json:"headers"`
	Encoding string            `json:"encoding"`
	Body     string            `json:"body"`
}

// InvokeResult is what a function returns.
type InvokeResult struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Encoding   string            `json:"encoding,omitempty"`
}
