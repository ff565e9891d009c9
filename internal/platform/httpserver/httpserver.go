// Package httpserver builds the API server with the timeouts this service
// needs: a strict header timeout against slowloris clients, but no overall
// read timeout, since multipart document uploads legitimately take a while.
package httpserver

import (
	"net/http"
	"time"
)

const headerTimeout = 5 * time.Second

// New wraps the handler in an http.Server ready for ListenAndServe.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: headerTimeout,
	}
}
