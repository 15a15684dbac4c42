// Package version holds the build-time version string shared by the
// daemon and its CLI client.
package version

// Version is overwritten at build time via -ldflags; "dev" otherwise.
var Version = "dev"
