// Package tlsroots provides TLS material for onboard-server.
//
//   - roots.go: trusted CA pools for outbound connections (the Redis mirror)
//   - watcher.go: serving certificate with hot reload via fsnotify
package tlsroots
