package policy

import "testing"

func TestAllowAllNeverDenies(t *testing.T) {
	var c Checker = AllowAll{}
	if !c.Check(nil, "acme", "acme/api/prod/db_url", ActionCreateConfig) {
		t.Error("AllowAll should always permit")
	}
	if !c.Check(&Subject{ID: "alice"}, "acme", "", ActionRemoveNode) {
		t.Error("AllowAll should always permit, even with a subject set")
	}
}

func TestDenyAllNeverPermits(t *testing.T) {
	var c Checker = DenyAll{}
	if c.Check(&Subject{ID: "alice"}, "acme", "acme/api/prod/db_url", ActionCreateConfig) {
		t.Error("DenyAll should always deny")
	}
}
