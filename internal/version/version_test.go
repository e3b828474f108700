package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	Version, Commit = "1.2.3", "abc1234"
	info := Get()

	if info.Version != "1.2.3" || info.Commit != "abc1234" {
		t.Errorf("Get() = %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %s, want %s", info.GoVersion, runtime.Version())
	}
}

func TestString(t *testing.T) {
	oldV, oldC, oldB := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = oldV, oldC, oldB })

	Version, Commit, BuildTime = "1.2.3", "abc1234", "2024-01-15T12:00:00Z"
	s := String()

	if !strings.HasPrefix(s, "1.2.3 (abc1234) built 2024-01-15T12:00:00Z") {
		t.Errorf("String() = %q", s)
	}
}
