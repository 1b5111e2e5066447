package registry

import "time"

// Option defines a functional configuration type for the Hub.
type Option func(*Hub)

// WithSendTimeout bounds how long a push may wait on a saturated channel
// before the [BACKPRESSURE] policy kicks in.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.config.sendTimeout = d
		}
	}
}

// WithBufferSize sets the per-channel outbound buffer capacity.
func WithBufferSize(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.config.bufferSize = size
		}
	}
}
