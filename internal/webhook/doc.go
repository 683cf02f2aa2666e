// Package webhook receives provider event callbacks, runs the inbound
// pipeline, and serves the operator read/write API.
package webhook
