// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, Date)
}

// UserAgent identifies outbound requests made by debugkit itself.
func UserAgent() string {
	return "debugkit/" + Version
}
