package httpbridge

import (
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Serve runs handler over lis using net/http.Server, auto-detecting
// cleartext HTTP/2 (the "PRI * HTTP/2.0" connection preface) on each
// accepted connection via golang.org/x/net/http2/h2c and otherwise
// falling back to HTTP/1.1 — there is no TLS in this stack, so h2c's
// preface sniff is the only way to offer both protocols on one listener.
func Serve(lis *Listener, handler http.Handler) error {
	h2s := &http2.Server{}
	srv := &http.Server{
		Handler: h2c.NewHandler(handler, h2s),
	}
	return srv.Serve(lis)
}
