package logging

import (
	"net/http"
	_ "net/http/pprof"
)

// startPprof exposes the pprof handlers on localhost only.
func startPprof() {
	go func() {
		_ = http.ListenAndServe("localhost:6060", nil)
	}()
}
