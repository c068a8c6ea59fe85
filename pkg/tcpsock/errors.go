package tcpsock

import "errors"

// ConnectError reasons (spec.md §4.3 TcpStream.connect).
var (
	ErrConnectInvalidState    = errors.New("tcpsock: invalid state for connect")
	ErrConnectInvalidEndpoint = errors.New("tcpsock: invalid remote endpoint")
	ErrConnectPortInUse       = errors.New("tcpsock: local port already in use")
)

// SendError / RecvError reasons.
var (
	ErrSendInvalidState = errors.New("tcpsock: socket is not established")
	ErrRecvInvalidState = errors.New("tcpsock: socket can never yield more bytes")
)

// AcceptError reasons (spec.md §4.3 TcpListener.accept).
var ErrAcceptUnaddressable = errors.New("tcpsock: every listen slot is dead")
