package realtime

import "time"

// Security/performance limits for the live feed.
const (
	// Max bytes per websocket frame read (hard limit). Clients only send hello.
	maxFrameBytes = 4 << 10 // 4 KiB
)

const (
	// Heartbeat defaults (can be overridden by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// A device must say hello this soon after the upgrade.
	helloTimeout = 10 * time.Second

	// Per-connection rate limits (client frames per window).
	rateLimitEvents = 20
	rateLimitWindow = 10 * time.Second
)
