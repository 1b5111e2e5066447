package memstore

import (
	"testing"

	"github.com/webitel/im-private-chat/internal/store"
	"github.com/webitel/im-private-chat/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}
