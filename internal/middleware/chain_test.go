package middleware

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commiterr/ratewise/internal/redact"
)

type recordingMiddleware struct {
	name   string
	trace  *[]string
	preErr error
}

func (m recordingMiddleware) Pre(ctx context.Context, req *Request) (*Request, error) {
	*m.trace = append(*m.trace, "pre:"+m.name)
	if m.preErr != nil {
		return req, m.preErr
	}
	return req, nil
}

func (m recordingMiddleware) Post(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	*m.trace = append(*m.trace, "post:"+m.name)
	return resp, nil
}

func (m recordingMiddleware) OnError(ctx context.Context, req *Request, err error) {
	*m.trace = append(*m.trace, "error:"+m.name)
}

func newRequest() *Request {
	u, _ := url.Parse("https://api.example.com/things")
	return &Request{Method: "GET", URL: u, Headers: http.Header{}, Metadata: map[string]interface{}{}}
}

func TestChain_PreRunsInInsertionOrder(t *testing.T) {
	var trace []string
	chain := NewChain(
		recordingMiddleware{name: "a", trace: &trace},
		recordingMiddleware{name: "b", trace: &trace},
		recordingMiddleware{name: "c", trace: &trace},
	)

	_, err := chain.RunPre(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"pre:a", "pre:b", "pre:c"}, trace)
}

func TestChain_PostRunsInReverseOrder(t *testing.T) {
	var trace []string
	chain := NewChain(
		recordingMiddleware{name: "a", trace: &trace},
		recordingMiddleware{name: "b", trace: &trace},
		recordingMiddleware{name: "c", trace: &trace},
	)

	_, err := chain.RunPost(context.Background(), newRequest(), &Response{Headers: http.Header{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"post:c", "post:b", "post:a"}, trace)
}

func TestChain_ErrorRunsInReverseOrder(t *testing.T) {
	var trace []string
	chain := NewChain(
		recordingMiddleware{name: "a", trace: &trace},
		recordingMiddleware{name: "b", trace: &trace},
	)

	chain.RunError(context.Background(), newRequest(), assertableErr{})
	assert.Equal(t, []string{"error:b", "error:a"}, trace)
}

func TestChain_PreAbortsOnError(t *testing.T) {
	var trace []string
	chain := NewChain(
		recordingMiddleware{name: "a", trace: &trace},
		recordingMiddleware{name: "b", trace: &trace, preErr: assertableErr{}},
		recordingMiddleware{name: "c", trace: &trace},
	)

	_, err := chain.RunPre(context.Background(), newRequest())
	require.Error(t, err)
	assert.Equal(t, []string{"pre:a", "pre:b"}, trace)
}

type assertableErr struct{}

func (assertableErr) Error() string { return "boom" }

func TestTimingMiddleware_FillsElapsed(t *testing.T) {
	mw := TimingMiddleware{}
	req := newRequest()

	req, err := mw.Pre(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, req.StartedAt.IsZero())

	resp := &Response{Headers: http.Header{}}
	resp, err = mw.Post(context.Background(), req, resp)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, resp.Elapsed.Nanoseconds(), int64(0))
}

func TestUserAgentMiddleware_SetsDefaultWhenAbsent(t *testing.T) {
	mw := NewUserAgentMiddleware("")
	req := newRequest()

	req, err := mw.Pre(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ratewise-client/1.0", req.Headers.Get("User-Agent"))
}

func TestUserAgentMiddleware_KeepsCallerSuppliedValue(t *testing.T) {
	mw := NewUserAgentMiddleware("")
	req := newRequest()
	req.Headers.Set("User-Agent", "custom/2.0")

	req, err := mw.Pre(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "custom/2.0", req.Headers.Get("User-Agent"))
}

func TestContentTypeMiddleware_SetsDefaultWhenBodyPresent(t *testing.T) {
	mw := NewContentTypeMiddleware("")
	req := newRequest()
	req.Body = []byte(`{"a":1}`)

	req, err := mw.Pre(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "application/json", req.Headers.Get("Content-Type"))
}

func TestContentTypeMiddleware_SkipsWhenNoBody(t *testing.T) {
	mw := NewContentTypeMiddleware("")
	req := newRequest()

	req, err := mw.Pre(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, req.Headers.Get("Content-Type"))
}

func TestContentTypeMiddleware_AnnotatesIsJSON(t *testing.T) {
	mw := NewContentTypeMiddleware("")
	resp := &Response{Headers: http.Header{"Content-Type": {"application/json"}}}

	resp, err := mw.Post(context.Background(), newRequest(), resp)
	require.NoError(t, err)
	assert.Equal(t, true, resp.Metadata["is_json"])
}

func TestLoggingMiddleware_DoesNotMutateRequestOrResponse(t *testing.T) {
	mw := NewLoggingMiddleware(redact.New(redact.DefaultConfig()))
	req := newRequest()
	req.RequestID = "abc12345"

	_, err := mw.Pre(context.Background(), req)
	require.NoError(t, err)

	resp := &Response{Headers: http.Header{}, StatusCode: 200}
	out, err := mw.Post(context.Background(), req, resp)
	require.NoError(t, err)
	assert.Equal(t, 200, out.StatusCode)
}
