package adtool

import "strings"

// psQuote renders s as a single-quoted PowerShell string literal,
// doubling every embedded single quote. This is the only mechanism by
// which untrusted attribute values reach the tool: never shell
// concatenation, never unescaped interpolation.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// psBool renders the two literals recognized by the tool for a
// PowerShell switch parameter.
func psBool(b bool) string {
	if b {
		return "$true"
	}
	return "$false"
}

// renderParams appends `-Key <value>` fragments for every recognized
// key present in params, in the fixed order orderedParamKeys defines,
// skipping Name and Path when includeNamePath is false (the update
// tool accepts neither).
func renderParams(params ParamSet, includeNamePath bool) string {
	var b strings.Builder
	for _, key := range orderedParamKeys {
		if !includeNamePath && (key == KeyName || key == KeyPath) {
			continue
		}
		raw, present := params[key]
		if !present {
			continue
		}
		switch v := raw.(type) {
		case string:
			if v == "" {
				continue
			}
			b.WriteString(" -")
			b.WriteString(key)
			b.WriteString(" ")
			b.WriteString(psQuote(v))
		case bool:
			b.WriteString(" -")
			b.WriteString(key)
			b.WriteString(" ")
			b.WriteString(psBool(v))
		}
	}
	return b.String()
}

// buildCreateScript assembles a New-ADUser invocation. The password is
// converted to a secure string inline; ChangePasswordAtLogon is forced
// false per spec; -PassThru requests the created object back so its
// ObjectGUID can be extracted.
func buildCreateScript(params ParamSet, password string) string {
	var b strings.Builder
	b.WriteString("$pw = ConvertTo-SecureString ")
	b.WriteString(psQuote(password))
	b.WriteString(" -AsPlainText -Force; New-ADUser")
	b.WriteString(renderParams(params, true))
	b.WriteString(" -AccountPassword $pw -ChangePasswordAtLogon ")
	b.WriteString(psBool(false))
	b.WriteString(" -PassThru | Select-Object ObjectGUID,SamAccountName,DisplayName,GivenName,Surname,EmailAddress,Enabled,EmployeeID,UserPrincipalName | ConvertTo-Json -Compress")
	return b.String()
}

// buildUpdateScript assembles a Set-ADUser invocation against identity
// (an objectGUID or sAMAccountName). Name and Path are never accepted
// by the update tool, so renderParams excludes them.
func buildUpdateScript(identity string, params ParamSet) string {
	var b strings.Builder
	b.WriteString("Set-ADUser -Identity ")
	b.WriteString(psQuote(identity))
	b.WriteString(renderParams(params, false))
	return b.String()
}

// buildDeleteScript assembles a Remove-ADUser invocation with
// non-interactive confirmation.
func buildDeleteScript(identity string) string {
	var b strings.Builder
	b.WriteString("Remove-ADUser -Identity ")
	b.WriteString(psQuote(identity))
	b.WriteString(" -Confirm:$false")
	return b.String()
}

// buildReadScript assembles a Get-ADUser full-attribute read-back.
func buildReadScript(identity string) string {
	var b strings.Builder
	b.WriteString("Get-ADUser -Identity ")
	b.WriteString(psQuote(identity))
	b.WriteString(" -Properties DisplayName,GivenName,Surname,EmailAddress,Enabled,EmployeeID,UserPrincipalName | Select-Object ObjectGUID,SamAccountName,DisplayName,GivenName,Surname,EmailAddress,Enabled,EmployeeID,UserPrincipalName | ConvertTo-Json -Compress")
	return b.String()
}

// redactParams returns a copy of params with sensitive keys replaced
// by redactionMarker, safe to serialize into an audit row. The
// audited parameter set also carries keys the tool invocation itself
// adds (e.g. AccountPassword) so they're redacted consistently even
// though they never appear in a ParamSet the mapper produces.
func redactParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if sensitiveKeys[strings.ToLower(k)] {
			out[k] = redactionMarker
			continue
		}
		out[k] = v
	}
	return out
}
