package obs

import (
	"errors"
	"runtime"
	"runtime/debug"

	"github.com/prometheus/client_golang/prometheus"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"goVersion"`
}

// ResolveBuildInfo combines the configured version and commit with what the
// Go toolchain stamped into the binary. A configured commit wins; otherwise
// the VCS revision is used when present.
func ResolveBuildInfo(version, commit string) BuildInfo {
	info := BuildInfo{Version: version, Commit: commit, GoVersion: runtime.Version()}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.GoVersion != "" {
			info.GoVersion = bi.GoVersion
		}
		if info.Commit == "" || info.Commit == "none" {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" && s.Value != "" {
					info.Commit = s.Value
				}
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	return info
}

// BuildInfoCollector exposes civreg_build_info as a constant 1 labelled with
// info. It is a plain collector so each registry gets its own instance.
func BuildInfoCollector(info BuildInfo) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "civreg_build_info",
		Help: "Civic registry API build information.",
		ConstLabels: prometheus.Labels{
			"version":    info.Version,
			"commit":     info.Commit,
			"go_version": info.GoVersion,
		},
	}, func() float64 { return 1 })
}

// PublishBuildInfo registers the build collector on reg. Registering the same
// build twice is not an error.
func PublishBuildInfo(reg prometheus.Registerer, info BuildInfo) error {
	err := reg.Register(BuildInfoCollector(info))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}
