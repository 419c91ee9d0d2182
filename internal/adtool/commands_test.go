package adtool

import (
	"strings"
	"testing"
)

func TestPsQuoteDoublesEmbeddedQuotes(t *testing.T) {
	got := psQuote(`O'Brien`)
	want := `'O''Brien'`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPsQuotePlainString(t *testing.T) {
	if got := psQuote("alice"); got != "'alice'" {
		t.Fatalf("got %q", got)
	}
}

func TestPsBool(t *testing.T) {
	if psBool(true) != "$true" {
		t.Fatal("expected $true")
	}
	if psBool(false) != "$false" {
		t.Fatal("expected $false")
	}
}

func TestRenderParamsFixedOrderAndExclusion(t *testing.T) {
	params := ParamSet{
		KeyPath:          "OU=Users,DC=example,DC=com",
		KeySamAccountName: "alice",
		KeyName:          "Alice Anderson",
		KeyEnabled:       true,
	}

	withNamePath := renderParams(params, true)
	samIdx := strings.Index(withNamePath, "-"+KeySamAccountName)
	nameIdx := strings.Index(withNamePath, "-"+KeyName)
	pathIdx := strings.Index(withNamePath, "-"+KeyPath)
	if samIdx < 0 || nameIdx < 0 || pathIdx < 0 {
		t.Fatalf("expected all three params rendered, got %q", withNamePath)
	}
	if !(samIdx < nameIdx && nameIdx < pathIdx) {
		t.Fatalf("expected SamAccountName, Name, Path in that order, got %q", withNamePath)
	}

	withoutNamePath := renderParams(params, false)
	if strings.Contains(withoutNamePath, "-"+KeyName+" ") || strings.Contains(withoutNamePath, "-"+KeyPath+" ") {
		t.Fatalf("expected Name and Path excluded, got %q", withoutNamePath)
	}
}

func TestRenderParamsSkipsEmptyStrings(t *testing.T) {
	params := ParamSet{KeyGivenName: "", KeySurname: "Anderson"}
	out := renderParams(params, true)
	if strings.Contains(out, "-"+KeyGivenName) {
		t.Fatalf("expected empty GivenName skipped, got %q", out)
	}
	if !strings.Contains(out, "-"+KeySurname) {
		t.Fatalf("expected Surname rendered, got %q", out)
	}
}

func TestBuildCreateScriptEmbedsSecureStringAndDisablesChangeAtLogon(t *testing.T) {
	params := ParamSet{KeySamAccountName: "alice", KeyName: "Alice"}
	script := buildCreateScript(params, "P@ssw0rd!")

	if !strings.Contains(script, "ConvertTo-SecureString 'P@ssw0rd!' -AsPlainText -Force") {
		t.Fatalf("expected secure string conversion, got %q", script)
	}
	if !strings.Contains(script, "New-ADUser") {
		t.Fatal("expected New-ADUser invocation")
	}
	if !strings.Contains(script, "-ChangePasswordAtLogon $false") {
		t.Fatalf("expected ChangePasswordAtLogon forced false, got %q", script)
	}
	if !strings.Contains(script, "-PassThru") || !strings.Contains(script, "ConvertTo-Json") {
		t.Fatalf("expected PassThru + json output, got %q", script)
	}
}

func TestBuildUpdateScriptExcludesNameAndPath(t *testing.T) {
	params := ParamSet{KeyName: "Alice", KeyPath: "OU=x", KeyDisplayName: "Alice A."}
	script := buildUpdateScript("abc-guid", params)

	if !strings.Contains(script, "Set-ADUser -Identity 'abc-guid'") {
		t.Fatalf("expected identity in script, got %q", script)
	}
	if strings.Contains(script, "-Name ") || strings.Contains(script, "-Path ") {
		t.Fatalf("expected Name/Path excluded from update script, got %q", script)
	}
	if !strings.Contains(script, "-DisplayName 'Alice A.'") {
		t.Fatalf("expected DisplayName rendered, got %q", script)
	}
}

func TestBuildDeleteScriptForcesNonInteractiveConfirm(t *testing.T) {
	script := buildDeleteScript("abc-guid")
	if !strings.Contains(script, "Remove-ADUser -Identity 'abc-guid'") {
		t.Fatalf("expected identity, got %q", script)
	}
	if !strings.Contains(script, "-Confirm:$false") {
		t.Fatalf("expected non-interactive confirm, got %q", script)
	}
}

func TestBuildReadScriptRequestsJSON(t *testing.T) {
	script := buildReadScript("abc-guid")
	if !strings.Contains(script, "Get-ADUser -Identity 'abc-guid'") {
		t.Fatalf("expected identity, got %q", script)
	}
	if !strings.Contains(script, "ConvertTo-Json") {
		t.Fatalf("expected json output, got %q", script)
	}
}

func TestRedactParamsMasksSensitiveKeysCaseInsensitively(t *testing.T) {
	in := map[string]any{
		"AccountPassword": "hunter2",
		"SamAccountName":  "alice",
		"Secret":          "sh",
	}
	out := redactParams(in)

	if out["AccountPassword"] != redactionMarker {
		t.Fatalf("expected AccountPassword redacted, got %v", out["AccountPassword"])
	}
	if out["Secret"] != redactionMarker {
		t.Fatalf("expected Secret redacted, got %v", out["Secret"])
	}
	if out["SamAccountName"] != "alice" {
		t.Fatalf("expected non-sensitive key untouched, got %v", out["SamAccountName"])
	}
}
