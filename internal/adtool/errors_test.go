package adtool

import "testing"

func TestClassifyPriorityOrder(t *testing.T) {
	cases := []struct {
		name       string
		stderr     string
		wantStatus int
		wantType   string
	}{
		{"already exists", `New-ADUser : An object with the same sAMAccountName already exists.`, 409, "uniqueness"},
		{"already in use", `The specified account name is already in use.`, 409, "uniqueness"},
		{"cannot find identity", `Cannot find an object with identity: 'alice' under: 'DC=example,DC=com'.`, 404, "noTarget"},
		{"not found", `The user was not found.`, 404, "noTarget"},
		{"no such object", `000020E7: NoSuchObject`, 404, "noTarget"},
		{"password complexity", `Set-ADAccountPassword : The password does not meet the length, complexity, or history requirement of the domain.`, 400, "invalidValue"},
		{"access denied", `Access is denied.`, 403, ""},
		{"invalid", `Set-ADUser : The parameter is invalid.`, 400, "invalidValue"},
		{"bad request", `Bad Request: malformed attribute.`, 400, "invalidValue"},
		{"unclassified", `An unexpected directory error occurred.`, 500, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.stderr)
			if got.HTTPStatus != tc.wantStatus {
				t.Errorf("status: got %d, want %d", got.HTTPStatus, tc.wantStatus)
			}
			if got.ScimType != tc.wantType {
				t.Errorf("scimType: got %q, want %q", got.ScimType, tc.wantType)
			}
			if got.Detail != tc.stderr {
				t.Errorf("detail: got %q, want original stderr %q", got.Detail, tc.stderr)
			}
		})
	}
}

func TestClassifyUniquenessBeatsInvalid(t *testing.T) {
	// A message that could plausibly match both "invalid" and "already
	// exists" must resolve to uniqueness, since that check runs first.
	got := Classify("invalid request: an object with that name already exists")
	if got.HTTPStatus != 409 || got.ScimType != "uniqueness" {
		t.Fatalf("expected uniqueness to take priority, got %+v", got)
	}
}

func TestIsAlreadyGone(t *testing.T) {
	if !IsAlreadyGone("Cannot find an object with identity: 'alice'.") {
		t.Fatal("expected cannot-find stderr recognized as already gone")
	}
	if !IsAlreadyGone("the user was not found") {
		t.Fatal("expected not-found stderr recognized as already gone")
	}
	if IsAlreadyGone("Access is denied.") {
		t.Fatal("expected unrelated stderr not recognized as already gone")
	}
}
