package httphandler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/webitel/im-private-chat/internal/service"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: empty", service.ErrInvalidMessage):  http.StatusBadRequest,
		fmt.Errorf("%w: not yours", service.ErrForbidden):   http.StatusForbidden,
		fmt.Errorf("%w: m-1", service.ErrNotFound):          http.StatusNotFound,
		fmt.Errorf("%w: ghost", service.ErrUnknownUser):     http.StatusNotFound,
		fmt.Errorf("%w: disk full", service.ErrPersistence): http.StatusServiceUnavailable,
		errors.New("boom"):                                  http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}
