package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	if Short() != Version {
		t.Errorf("Short() = %q, want %q", Short(), Version)
	}
	if !strings.Contains(Info(), Version) {
		t.Errorf("Info() = %q, missing version", Info())
	}
	if Map()["version"] != Version {
		t.Errorf("Map()[version] = %q", Map()["version"])
	}
}
