package config

import "runtime/debug"

// Overridden at link time, e.g.
//
//	-ldflags "-X tipkoro/internal/config.version=1.4.0 -X tipkoro/internal/config.commit=abc1234"
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo reports the linker-injected values. When the binary was built
// without ldflags, the commit and time fall back to the toolchain's VCS stamp.
func NewBuildInfo() BuildInfo {
	info := BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
	if commit != "none" {
		return info
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) > 7 {
				s.Value = s.Value[:7]
			}
			info.Commit = s.Value
		case "vcs.time":
			info.BuildTime = s.Value
		}
	}
	return info
}
