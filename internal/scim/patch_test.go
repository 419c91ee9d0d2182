package scim

import (
	"reflect"
	"testing"
)

func TestApplyPatchNoOpsLeavesResourceUnchanged(t *testing.T) {
	in := map[string]any{"userName": "alice"}
	out, changed := ApplyPatch(in, nil)

	if out["userName"] != "alice" {
		t.Fatalf("expected userName preserved, got %v", out["userName"])
	}
	if len(changed) != 0 {
		t.Fatalf("expected no changed fields, got %v", changed)
	}
	if reflect.ValueOf(in).Pointer() == reflect.ValueOf(out).Pointer() {
		t.Fatal("expected a new map, not the same instance")
	}
}

func TestApplyPatchNoPathMergesObject(t *testing.T) {
	in := map[string]any{"userName": "alice"}
	ops := []PatchOperation{
		{Op: "replace", Value: map[string]any{"active": false, "displayName": "Alice A"}},
	}
	out, changed := ApplyPatch(in, ops)

	if out["active"] != false || out["displayName"] != "Alice A" {
		t.Fatalf("expected merged fields, got %+v", out)
	}
	if changed["active"] != false || changed["displayName"] != "Alice A" {
		t.Fatalf("expected changed map to record both fields, got %+v", changed)
	}
	if out["userName"] != "alice" {
		t.Fatal("expected untouched fields preserved")
	}
}

func TestApplyPatchSimpleNameSetAndRemove(t *testing.T) {
	in := map[string]any{}
	ops := []PatchOperation{
		{Op: "replace", Path: "displayName", Value: "Bob"},
	}
	out, changed := ApplyPatch(in, ops)
	if out["displayName"] != "Bob" {
		t.Fatalf("expected displayName set, got %v", out["displayName"])
	}
	if changed["displayName"] != "Bob" {
		t.Fatalf("expected changed to record displayName, got %+v", changed)
	}

	ops2 := []PatchOperation{{Op: "remove", Path: "displayName"}}
	out2, changed2 := ApplyPatch(out, ops2)
	if _, present := out2["displayName"]; present {
		t.Fatal("expected displayName removed")
	}
	if v, present := changed2["displayName"]; !present || v != nil {
		t.Fatalf("expected changed to record nil for removed key, got %v present=%v", v, present)
	}
}

func TestApplyPatchMultiValuedMatch(t *testing.T) {
	in := map[string]any{
		"emails": []any{
			map[string]any{"type": "work", "value": "old@example.com"},
			map[string]any{"type": "home", "value": "home@example.com"},
		},
	}
	ops := []PatchOperation{
		{Op: "replace", Path: `emails[type eq "work"].value`, Value: "new@example.com"},
	}
	out, changed := ApplyPatch(in, ops)

	list, _ := out["emails"].([]any)
	if len(list) != 2 {
		t.Fatalf("expected 2 elements preserved, got %d", len(list))
	}
	work, _ := list[0].(map[string]any)
	if work["value"] != "new@example.com" {
		t.Fatalf("expected work email updated, got %+v", work)
	}
	if _, ok := changed["emails"]; !ok {
		t.Fatal("expected emails recorded as changed")
	}
}

func TestApplyPatchMultiValuedFilterMissSynthesizesElement(t *testing.T) {
	in := map[string]any{
		"emails": []any{
			map[string]any{"type": "home", "value": "home@example.com"},
		},
	}
	ops := []PatchOperation{
		{Op: "add", Path: `emails[type eq "work"].value`, Value: "new@example.com"},
	}
	out, _ := ApplyPatch(in, ops)

	list, _ := out["emails"].([]any)
	if len(list) != 2 {
		t.Fatalf("expected synthesized element appended, got %d elements", len(list))
	}
	synthesized, _ := list[1].(map[string]any)
	if synthesized["type"] != "work" || synthesized["value"] != "new@example.com" {
		t.Fatalf("expected synthesized element from predicate, got %+v", synthesized)
	}
}

func TestApplyPatchMultiValuedRemove(t *testing.T) {
	in := map[string]any{
		"emails": []any{
			map[string]any{"type": "work", "value": "work@example.com"},
			map[string]any{"type": "home", "value": "home@example.com"},
		},
	}
	ops := []PatchOperation{
		{Op: "remove", Path: `emails[type eq "home"]`},
	}
	out, _ := ApplyPatch(in, ops)

	list, _ := out["emails"].([]any)
	if len(list) != 1 {
		t.Fatalf("expected 1 element remaining, got %d", len(list))
	}
	remaining, _ := list[0].(map[string]any)
	if remaining["type"] != "work" {
		t.Fatalf("expected work email kept, got %+v", remaining)
	}
}

func TestApplyPatchDottedPath(t *testing.T) {
	in := map[string]any{"name": map[string]any{"givenName": "Alice"}}
	ops := []PatchOperation{
		{Op: "replace", Path: "name.familyName", Value: "Anderson"},
	}
	out, changed := ApplyPatch(in, ops)

	name, _ := out["name"].(map[string]any)
	if name["givenName"] != "Alice" || name["familyName"] != "Anderson" {
		t.Fatalf("expected merged name, got %+v", name)
	}
	if _, ok := changed["name"]; !ok {
		t.Fatal("expected name recorded as changed")
	}
}

func TestApplyPatchDottedPathCreatesMissingParent(t *testing.T) {
	in := map[string]any{}
	ops := []PatchOperation{
		{Op: "add", Path: "name.givenName", Value: "Carol"},
	}
	out, _ := ApplyPatch(in, ops)

	name, ok := out["name"].(map[string]any)
	if !ok {
		t.Fatalf("expected name object created, got %v", out["name"])
	}
	if name["givenName"] != "Carol" {
		t.Fatalf("expected givenName set, got %+v", name)
	}
}

func TestApplyPatchDoesNotMutateInput(t *testing.T) {
	in := map[string]any{"displayName": "Alice"}
	ops := []PatchOperation{{Op: "replace", Path: "displayName", Value: "Changed"}}
	ApplyPatch(in, ops)

	if in["displayName"] != "Alice" {
		t.Fatalf("expected input untouched, got %v", in["displayName"])
	}
}

func TestApplyPatchIsIdempotentWhenReappliedWithSameValue(t *testing.T) {
	in := map[string]any{"active": true}
	ops := []PatchOperation{{Op: "replace", Path: "active", Value: false}}

	once, _ := ApplyPatch(in, ops)
	twice, _ := ApplyPatch(once, ops)

	if once["active"] != false || twice["active"] != false {
		t.Fatalf("expected active=false after both applications, got %v then %v", once["active"], twice["active"])
	}
}
