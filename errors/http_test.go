package errors

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMapToHTTPStatus(t *testing.T) {
	req := require.New(t)

	// Wrapped sentinels must still map through errors.Is
	req.Equal(http.StatusForbidden, MapToHTTPStatus(fmt.Errorf("send: %w", ErrNotParticipant)))
	req.Equal(http.StatusNotFound, MapToHTTPStatus(fmt.Errorf("%w: chat x", ErrNotFound)))
	req.Equal(http.StatusUnauthorized, MapToHTTPStatus(ErrInvalidCredentials))
	req.Equal(http.StatusConflict, MapToHTTPStatus(ErrUserAlreadyExists))
	req.Equal(http.StatusBadRequest, MapToHTTPStatus(fmt.Errorf("%w: too weak", ErrInvalidPassword)))
	req.Equal(http.StatusBadRequest, MapToHTTPStatus(fmt.Errorf("%w: 4001 runes", ErrInvalidMessage)))
	req.Equal(http.StatusTooManyRequests, MapToHTTPStatus(RateLimitError{RetryAfter: time.Second}))
	req.Equal(http.StatusInternalServerError, MapToHTTPStatus(fmt.Errorf("disk full")))
	req.Equal(http.StatusOK, MapToHTTPStatus(nil))
}
