package resilience

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(&StatusError{Service: "registry", StatusCode: 429}))
	assert.False(t, IsRateLimited(&StatusError{Service: "registry", StatusCode: 503}))
	assert.False(t, IsRateLimited(eris.New("some error")))
	assert.False(t, IsRateLimited(nil))

	// Works through wrapping.
	wrapped := fmt.Errorf("search: %w", &StatusError{Service: "registry", StatusCode: 429})
	assert.True(t, IsRateLimited(wrapped))
}

func TestIsTransient_StatusCodes(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransient(&StatusError{Service: "s", StatusCode: code}), "status %d", code)
	}
	for _, code := range []int{400, 401, 403, 404, 422} {
		assert.False(t, IsTransient(&StatusError{Service: "s", StatusCode: code}), "status %d", code)
	}
}

func TestIsTransient_NetworkErrors(t *testing.T) {
	assert.True(t, IsTransient(syscall.ECONNRESET))
	assert.True(t, IsTransient(syscall.ECONNREFUSED))
	assert.True(t, IsTransient(eris.New("dial tcp: i/o timeout")))
	assert.True(t, IsTransient(eris.New("lookup api.example.com: no such host")))
}

func TestIsTransient_PermanentErrors(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("invalid api key")))
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Service: "registry", StatusCode: 429}
	assert.Equal(t, "registry: http status 429", err.Error())
}
