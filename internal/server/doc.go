// Package server implements the nextiso daemon and its client.
//
// The daemon serves a small HTTP API on a Unix domain socket so that a
// local user interface can start builds and follow their progress:
//
//	POST /builds     body: a system configuration (JSON or YAML)
//	                 response: newline-delimited JSON progress events
//	GET  /status     daemon version, uptime and build count
//	POST /shutdown   stops the daemon
//
// A build runs for as long as the client stays connected. Disconnecting
// cancels it, and the build environment is still torn down. Only one build
// runs at a time; a second request is answered with 409 Conflict.
//
// Example usage:
//
//	srv, err := server.New(server.Config{Builder: builder})
//	if err != nil {
//	    return err
//	}
//	return srv.Serve(ctx)
package server
