package version

// CurrentCommit is injected with -ldflags at build time.
var CurrentCommit string

// BuildVersion is the local build version, set by build system
const BuildVersion = "0.3.0"

var UserVersion = BuildVersion + CurrentCommit
