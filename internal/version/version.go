// Package version holds build-time version metadata, set via linker flags
// (-ldflags "-X ...") at release build time and left at their zero values
// for local/dev builds.
package version

// Version is the semantic release tag this binary was built from.
var Version = "dev"

// Commit is the VCS commit SHA this binary was built from.
var Commit = "unknown"
