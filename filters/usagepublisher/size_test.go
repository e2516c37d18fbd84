package usagepublisher

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/KalanaDananjaya/carbon-apimgt/logging/loggingtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyBody struct {
	calls int
	body  []byte
	err   error
}

func (s *spyBody) Materialize() ([]byte, error) {
	s.calls++
	return s.body, s.err
}

func header(kv ...string) http.Header {
	h := make(http.Header)
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}

	return h
}

func TestResolveSize(t *testing.T) {
	errStream := errors.New("malformed stream")

	for _, tt := range []struct {
		name      string
		header    http.Header
		body      *spyBody
		want      int64
		wantCalls int
		wantWarn  bool
	}{{
		name:   "declared size",
		header: header("Content-Length", "523"),
		body:   &spyBody{body: []byte("ignored")},
		want:   523,
	}, {
		name:   "declared zero size",
		header: header("Content-Length", "0"),
		body:   &spyBody{body: []byte("ignored")},
		want:   0,
	}, {
		name:      "chunked",
		header:    header("Transfer-Encoding", "chunked"),
		body:      &spyBody{body: []byte("hello world")},
		want:      11,
		wantCalls: 1,
	}, {
		name:      "no header at all",
		body:      &spyBody{body: []byte("hello")},
		want:      5,
		wantCalls: 1,
	}, {
		name:      "invalid declared size",
		header:    header("Content-Length", "many"),
		body:      &spyBody{body: []byte("hello")},
		want:      5,
		wantCalls: 1,
	}, {
		name:      "negative declared size",
		header:    header("Content-Length", "-1"),
		body:      &spyBody{body: []byte("hello")},
		want:      5,
		wantCalls: 1,
	}, {
		name:      "failing body",
		body:      &spyBody{err: errStream},
		want:      0,
		wantCalls: 1,
		wantWarn:  true,
	}, {
		name:      "partially read body",
		body:      &spyBody{body: []byte("hel"), err: errStream},
		want:      3,
		wantCalls: 1,
		wantWarn:  true,
	}} {
		t.Run(tt.name, func(t *testing.T) {
			lg := loggingtest.New()
			defer lg.Close()

			got := ResolveSize(tt.header, tt.body, lg)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, tt.body.calls)

			warned := lg.Count("calculate the response body size") > 0
			assert.Equal(t, tt.wantWarn, warned)
		})
	}
}

func TestResolveSizeWithoutBody(t *testing.T) {
	lg := loggingtest.New()
	defer lg.Close()

	assert.Zero(t, ResolveSize(nil, nil, lg))
}

func TestResponseBodyIsReplayed(t *testing.T) {
	rsp := &http.Response{
		Header: make(http.Header),
		Body:   io.NopCloser(strings.NewReader("chunked payload")),
	}

	lg := loggingtest.New()
	defer lg.Close()

	size := ResolveSize(rsp.Header, responseBody{rsp}, lg)
	assert.EqualValues(t, len("chunked payload"), size)

	b, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	assert.Equal(t, "chunked payload", string(b))
	assert.NoError(t, rsp.Body.Close())
}

func TestFailingResponseBodyKeepsFailing(t *testing.T) {
	errRead := errors.New("connection reset")
	rsp := &http.Response{
		Header: make(http.Header),
		Body: io.NopCloser(io.MultiReader(
			strings.NewReader("part"),
			iotest.ErrReader(errRead),
		)),
	}

	lg := loggingtest.New()
	defer lg.Close()

	size := ResolveSize(rsp.Header, responseBody{rsp}, lg)
	assert.EqualValues(t, 4, size)

	b, err := io.ReadAll(rsp.Body)
	assert.Equal(t, "part", string(b))
	assert.ErrorIs(t, err, errRead)
}

func TestResponseBodyNoBody(t *testing.T) {
	for _, rsp := range []*http.Response{
		nil,
		{},
		{Body: http.NoBody},
	} {
		b, err := responseBody{rsp}.Materialize()
		assert.NoError(t, err)
		assert.Empty(t, b)
	}
}
