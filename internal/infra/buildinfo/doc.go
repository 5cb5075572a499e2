// Package buildinfo exposes build-time version information.
//
// Values are injected via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/onboard-go/internal/infra/buildinfo.Version=v1.0.0 \
//	  -X github.com/yndnr/onboard-go/internal/infra/buildinfo.Commit=abc123"
//
// When they are not, Get falls back to the module and VCS data the Go
// toolchain embeds in the binary.
package buildinfo
