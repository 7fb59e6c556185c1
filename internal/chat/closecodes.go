package chat

// Application close codes sent when a session terminates during handshake
// or on a fatal error. 400x is the authentication range, 41xx the
// authorization range; clients only need the class, the subdivision exists
// for observability.
const (
	CloseInternalError  = 4000
	CloseAuthRequired   = 4001
	CloseTokenExpired   = 4002
	CloseTokenMalformed = 4003
	CloseUnknownSubject = 4004
	CloseForbidden      = 4103
	CloseNotFound       = 4104
)
