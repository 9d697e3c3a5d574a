package util

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuickHTTPClient(t *testing.T) {
	assert := assert.New(t)

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := QuickHTTPClient().Get(srv.URL)
	assert.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(int32(1), atomic.LoadInt32(&hits))
}

func TestRobustHTTPClientDefaults(t *testing.T) {
	assert := assert.New(t)

	c := RobustHTTPClient()
	assert.NotNil(c.Transport)
	assert.Equal(float64(20), c.Timeout.Seconds())
}
