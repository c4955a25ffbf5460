package server

import "errors"

var (
	ErrServer       = errors.New("server error")
	ErrNotRunning   = errors.New("daemon is not running")
	ErrBadResponse  = errors.New("unexpected response from daemon")
	ErrStreamCutOff = errors.New("event stream ended without a result")
)
