package scim

import "testing"

func TestParseFilterSupported(t *testing.T) {
	cases := []struct {
		expr   string
		column string
		op     Op
		value  string
	}{
		{`userName eq "x@y"`, "sam_account_name", OpEqual, "x@y"},
		{`id eq "abc"`, "id", OpEqual, "abc"},
		{`externalId eq "abc"`, "id", OpEqual, "abc"},
		{`userName sw "ali"`, "sam_account_name", OpStartsWith, "ali"},
		{`userName co "x"`, "sam_account_name", OpContains, "x"},
		{`USERNAME EQ "Alice"`, "sam_account_name", OpEqual, "Alice"},
	}

	for _, tc := range cases {
		f, ok := ParseFilter(tc.expr)
		if !ok {
			t.Fatalf("expected %q to parse", tc.expr)
		}
		if f.Column != tc.column || f.Op != tc.op || f.Value != tc.value {
			t.Fatalf("%q: got %+v", tc.expr, f)
		}
	}
}

func TestParseFilterUnsupported(t *testing.T) {
	cases := []string{
		`not (userName eq "x")`,
		`displayName eq "x"`,
		`userName eq "x" and active eq true`,
		``,
		`userName`,
		`userName eq x`,
	}

	for _, expr := range cases {
		if _, ok := ParseFilter(expr); ok {
			t.Fatalf("expected %q to be unsupported", expr)
		}
	}
}

func TestParseFilterUserNameMatchesSam(t *testing.T) {
	f, ok := ParseFilter(`userName eq "x@y"`)
	if !ok {
		t.Fatal("expected filter to parse")
	}
	if f.Column != "sam_account_name" {
		t.Fatalf("expected sam_account_name column, got %s", f.Column)
	}
}
