package server

import (
	"time"

	"github.com/nedpals/nfc-session/buildinfo"
)

// mDNS service discovery constants
var (
	MDNSServiceType = "_nfc-session._tcp"
	MDNSServiceName = buildinfo.DisplayName
	MDNSDomain      = "local."
)

// Default listen address
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 18080
)

// CORS configuration
const (
	CORSAllowOrigin  = "*"
	CORSAllowMethods = "GET, OPTIONS"
	CORSAllowHeaders = "Content-Type, Authorization"
)

const (
	writeWait       = 5 * time.Second
	shutdownTimeout = 5 * time.Second

	// sendQueueSize is how many messages a client may lag behind before it
	// is dropped.
	sendQueueSize = 64
)
