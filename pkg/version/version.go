// Package version reports which build of agentlytics is running, for startup
// logs and the health endpoint.
package version

import (
	"runtime/debug"
	"sync"
)

// AppName prefixes version strings.
const AppName = "agentlytics"

// revision resolves the VCS state embedded by the Go toolchain at build time.
// Computed lazily: debug.ReadBuildInfo walks the whole module graph and the
// result never changes within a process.
var revision = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		// Built outside a checkout (go test, vendored source drops, etc.).
		return "unknown"
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
})

// Revision returns the short VCS revision of this binary, "-dirty" suffixed
// when the working tree had local modifications, or "unknown" when no build
// metadata is available.
func Revision() string {
	return revision()
}

// String returns "agentlytics@<revision>".
func String() string {
	return AppName + "@" + Revision()
}
