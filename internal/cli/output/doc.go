// Package output provides output formatting for onboard-cli.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: Table rendering for structs, slices and maps
//   - json.go: JSON output formatting
//   - yaml.go: YAML output formatting
//   - progress.go: Onboarding progress bar
package output
