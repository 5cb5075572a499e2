// Package connection provides the HTTP client onboard-cli uses to talk to a
// running onboard-server.
package connection
