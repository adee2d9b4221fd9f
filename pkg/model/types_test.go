package model

import "testing"

func TestPermissionLevelIncludes(t *testing.T) {
	tests := []struct {
		holder, check PermissionLevel
		want          bool
	}{
		{PermissionWrite, PermissionRead, true},
		{PermissionWrite, PermissionWrite, true},
		{PermissionRead, PermissionRead, true},
		{PermissionRead, PermissionWrite, false},
		{PermissionNone, PermissionRead, false},
		{PermissionRead, PermissionNone, true},
	}

	for _, tt := range tests {
		if got := tt.holder.Includes(tt.check); got != tt.want {
			t.Errorf("%s.Includes(%s) = %v, want %v", tt.holder, tt.check, got, tt.want)
		}
	}
}

func TestParsePermissionLevelRoundtrip(t *testing.T) {
	for _, level := range []PermissionLevel{PermissionNone, PermissionRead, PermissionWrite} {
		if got := ParsePermissionLevel(level.String()); got != level {
			t.Errorf("parse(%q) = %v, want %v", level.String(), got, level)
		}
	}
	if got := ParsePermissionLevel("admin"); got != PermissionNone {
		t.Errorf("parse of unknown level = %v, want none", got)
	}
}

func TestNodeTypeIsVersioned(t *testing.T) {
	versioned := map[NodeType]bool{
		NodeTypeTemplate: true,
		NodeTypeElement:  true,
		NodeTypeFolder:   false,
		NodeTypeField:    false,
		NodeTypeInstance: false,
	}
	for nodeType, want := range versioned {
		if got := nodeType.IsVersioned(); got != want {
			t.Errorf("%s.IsVersioned() = %v, want %v", nodeType, got, want)
		}
	}
}

func TestNewNodeIDIsUnique(t *testing.T) {
	a, b := NewNodeID(), NewNodeID()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty IDs, got %q and %q", a, b)
	}
}
