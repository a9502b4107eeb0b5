package obs

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResolveBuildInfoKeepsConfiguredValues(t *testing.T) {
	info := ResolveBuildInfo("1.4.0", "deadbeef")
	if info.Version != "1.4.0" || info.Commit != "deadbeef" {
		t.Fatalf("configured values overridden: %+v", info)
	}
	if !strings.HasPrefix(info.GoVersion, "go") {
		t.Fatalf("unexpected go version %q", info.GoVersion)
	}

	blank := ResolveBuildInfo("", "")
	if blank.Version != "dev" || blank.Commit == "" {
		t.Fatalf("expected defaults, got %+v", blank)
	}
}

func TestPublishBuildInfo(t *testing.T) {
	reg := prometheus.NewRegistry()
	info := BuildInfo{Version: "1.4.0", Commit: "deadbeef", GoVersion: "go1.24"}
	if err := PublishBuildInfo(reg, info); err != nil {
		t.Fatalf("PublishBuildInfo: %v", err)
	}
	if err := PublishBuildInfo(reg, info); err != nil {
		t.Fatalf("second publish should be a no-op: %v", err)
	}

	expected := `
# HELP civreg_build_info Civic registry API build information.
# TYPE civreg_build_info gauge
civreg_build_info{commit="deadbeef",go_version="go1.24",version="1.4.0"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "civreg_build_info"); err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}
