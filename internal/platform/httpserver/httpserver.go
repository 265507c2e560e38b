// Package httpserver builds the admin API server with the timeouts the
// deployment expects. Checks served here sit on the player join path, so
// slow-client protection matters more than generosity.
package httpserver

import (
	"net/http"
	"time"
)

// ShutdownGrace bounds how long in-flight requests may run once the process
// receives a termination signal.
const ShutdownGrace = 10 * time.Second

// New builds the HTTP server. Write generosity covers the punishment list
// endpoint, which can return a subject's full history in one response.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
