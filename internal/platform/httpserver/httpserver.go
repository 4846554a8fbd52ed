package httpserver

import (
	"net/http"
	"time"
)

// New builds the listener. An inbound POST credentials runs a whole outbound
// discovery and exchange before it answers, so the write deadline covers
// handshakeBudget plus headroom for the response itself.
func New(addr string, handler http.Handler, handshakeBudget time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      handshakeBudget + 10*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

// HandshakeBudget is the worst case for one inbound handshake: two retried
// discovery GETs followed by one credentials call, each bounded by timeout.
// Backoff pauses, counted at twice the initial interval, come on top.
func HandshakeBudget(timeout time.Duration, getTries uint64, backoff time.Duration) time.Duration {
	tries := time.Duration(max(getTries, 1))
	return (2*tries+1)*timeout + 2*(tries-1)*backoff*2
}
