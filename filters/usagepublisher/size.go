package usagepublisher

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/KalanaDananjaya/carbon-apimgt/logging"
)

// BodyMaterializer reads the whole response body. On failure, it returns
// the bytes read before the failure together with the error.
type BodyMaterializer interface {
	Materialize() ([]byte, error)
}

// ResolveSize returns the response size declared by the Content-Length
// header. When the header is missing or invalid, it buffers the body to
// count its bytes. A failing body is logged and counted up to the
// failure, so the result is always defined and never negative.
func ResolveSize(h http.Header, body BodyMaterializer, l logging.Logger) int64 {
	if n, ok := declaredSize(h); ok {
		return n
	}

	if body == nil {
		return 0
	}

	b, err := body.Materialize()
	if err != nil {
		l.Warnf("Error occurred while building the message to calculate the response body size: %v", err)
	}

	return int64(len(b))
}

func declaredSize(h http.Header) (int64, bool) {
	v := h.Get("Content-Length")
	if v == "" {
		return 0, false
	}

	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

// responseBody materializes the body of an http response, and puts the
// buffered bytes back in front of the unread rest of the stream.
type responseBody struct {
	rsp *http.Response
}

type replayBody struct {
	io.Reader
	io.Closer
}

func (b responseBody) Materialize() ([]byte, error) {
	if b.rsp == nil || b.rsp.Body == nil || b.rsp.Body == http.NoBody {
		return nil, nil
	}

	rest := b.rsp.Body
	buf, err := io.ReadAll(rest)
	b.rsp.Body = replayBody{
		Reader: io.MultiReader(bytes.NewReader(buf), rest),
		Closer: rest,
	}

	return buf, err
}
