package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Version == "" || b.Commit == "" || b.Date == "" {
		t.Fatalf("build info must not be empty: %+v", b)
	}
	if b.Version != GetVersion() || b.Commit != GetCommit() || b.Date != GetDate() {
		t.Fatalf("accessors disagree with Get: %+v", b)
	}
}

func TestBuildString(t *testing.T) {
	s := Build{Version: "1.2.3", Commit: "abc", Date: "2026-01-01"}.String()
	for _, part := range []string{"version=1.2.3", "commit=abc", "date=2026-01-01"} {
		if !strings.Contains(s, part) {
			t.Errorf("%q missing %q", s, part)
		}
	}
}

func TestClientID(t *testing.T) {
	if got := ClientID("checkout-service"); got != "checkout-service/"+GetVersion() {
		t.Fatalf("unexpected client id: %s", got)
	}
}
