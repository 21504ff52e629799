package request

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(code int, body string) *http.Response {
	u, _ := url.Parse("https://graph.microsoft.com/v1.0/me/drive/root/children?$top=10")
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    &http.Request{Method: http.MethodGet, URL: u},
	}
}

func TestCheckResponse(t *testing.T) {
	assert.NoError(t, CheckResponse(response(200, "")))
	assert.NoError(t, CheckResponse(response(204, "")))

	err := CheckResponse(response(404, `{"error":{"code":"itemNotFound","message":"The resource could not be found."}}`))
	require.Error(t, err)

	serr, ok := err.(*StatusError)
	require.True(t, ok)
	assert.Equal(t, 404, serr.StatusCode)
	assert.Equal(t, "itemNotFound", serr.Code)
	assert.Equal(t, "https://graph.microsoft.com/v1.0/me/drive/root/children", serr.URL, "query stripped")
	assert.Contains(t, serr.Error(), "404 Not Found")
	assert.Contains(t, serr.Error(), "itemNotFound")
}

func TestCheckResponse_PlainBody(t *testing.T) {
	err := CheckResponse(response(502, "bad gateway"))

	serr, ok := err.(*StatusError)
	require.True(t, ok)
	assert.Equal(t, "bad gateway", serr.Body)
	assert.Empty(t, serr.Code)
}
