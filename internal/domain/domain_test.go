package domain

import "testing"

func TestCanonicalType(t *testing.T) {
	cases := []struct {
		raw  string
		want ArtifactType
	}{
		{"charter", TypeCharter},
		{"project_charter", TypeCharter},
		{"Risk Register", TypeRiskRegister},
		{"risk-register", TypeRiskRegister},
		{"  WBS ", TypeWBS},
		{"closeout_report", TypeClosureReport},
		{"plan", TypeSchedule},
	}
	for _, c := range cases {
		got, err := CanonicalType(c.raw)
		if err != nil {
			t.Fatalf("CanonicalType(%q): %v", c.raw, err)
		}
		if got != c.want {
			t.Fatalf("CanonicalType(%q) = %s, want %s", c.raw, got, c.want)
		}
	}
}

func TestCanonicalTypeRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "memo", "charterx"} {
		if _, err := CanonicalType(raw); err == nil {
			t.Fatalf("CanonicalType(%q) accepted", raw)
		}
	}
}

func TestArtifactLockDerivation(t *testing.T) {
	locked := map[ApprovalStatus]bool{
		StatusDraft:            false,
		StatusChangesRequested: false,
		StatusSubmitted:        true,
		StatusApproved:         true,
		StatusRejected:         true,
	}
	for status, want := range locked {
		a := Artifact{ApprovalStatus: status}
		if a.IsLocked() != want {
			t.Fatalf("IsLocked in %s = %v, want %v", status, a.IsLocked(), want)
		}
	}
}

func TestValidLane(t *testing.T) {
	for _, l := range Lanes {
		if _, ok := ValidLane(string(l)); !ok {
			t.Fatalf("lane %s rejected", l)
		}
	}
	if _, ok := ValidLane("backlog"); ok {
		t.Fatal("unknown lane accepted")
	}
}
