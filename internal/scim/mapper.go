package scim

import (
	"strings"

	"github.com/ad-scim/bridge/internal/adtool"
)

// ScimToParams translates a SCIM User into a directory parameter set.
// baseOu is supplied only on the creation path; when non-empty it is
// written to Path. Rules are applied in order; an unset SCIM field
// produces no corresponding key (not a zero-valued one).
func ScimToParams(u User, baseOu string) adtool.ParamSet {
	p := adtool.ParamSet{}

	if u.UserName != "" {
		p[adtool.KeySamAccountName] = u.UserName
		if strings.Contains(u.UserName, "@") {
			p[adtool.KeyUserPrincipalName] = u.UserName
		}
	}

	if u.Name != nil {
		if u.Name.GivenName != "" {
			p[adtool.KeyGivenName] = u.Name.GivenName
		}
		if u.Name.FamilyName != "" {
			p[adtool.KeySurname] = u.Name.FamilyName
		}
	}

	if email, ok := primaryEmail(u.Emails); ok {
		p[adtool.KeyEmailAddress] = email
	}

	if u.DisplayName != "" {
		p[adtool.KeyDisplayName] = u.DisplayName
	}

	if u.Active != nil {
		p[adtool.KeyEnabled] = *u.Active
	}

	if u.ExternalID != "" {
		p[adtool.KeyEmployeeID] = u.ExternalID
	}

	// The CN (Name) is required for creation: DisplayName if set, else
	// SamAccountName.
	if u.DisplayName != "" {
		p[adtool.KeyName] = u.DisplayName
	} else if u.UserName != "" {
		p[adtool.KeyName] = u.UserName
	}

	if baseOu != "" {
		p[adtool.KeyPath] = baseOu
	}

	return p
}

// primaryEmail picks the first email with primary=true, else the first
// element, and reports its value if non-empty.
func primaryEmail(emails []Email) (string, bool) {
	if len(emails) == 0 {
		return "", false
	}
	for _, e := range emails {
		if e.Primary {
			if e.Value != "" {
				return e.Value, true
			}
			return "", false
		}
	}
	if emails[0].Value != "" {
		return emails[0].Value, true
	}
	return "", false
}

// AdToScim merges a directory read-back into an existing SCIM record,
// returning a new User value (existing is not mutated). Fields absent
// from adUser leave the corresponding field on existing untouched.
func AdToScim(existing User, adUser map[string]any) User {
	out := existing

	if v, ok := stringField(adUser, "SamAccountName"); ok {
		out.UserName = v
	}
	if v, ok := stringField(adUser, "DisplayName"); ok {
		out.DisplayName = v
	}

	given, hasGiven := stringField(adUser, "GivenName")
	surname, hasSurname := stringField(adUser, "Surname")
	if hasGiven || hasSurname {
		name := Name{}
		if out.Name != nil {
			name = *out.Name
		}
		if hasGiven {
			name.GivenName = given
		}
		if hasSurname {
			name.FamilyName = surname
		}
		out.Name = &name
	}

	if v, ok := stringField(adUser, "EmailAddress"); ok {
		out.Emails = []Email{{Value: v, Type: "work", Primary: true}}
	}

	if v, ok := adUser["Enabled"].(bool); ok {
		out.Active = &v
	}

	return out
}

// stringField reads a string field from a directory read-back,
// tolerating both bare strings and the tool's wrapped { "value": ... }
// shape (the same layout objectGUID extraction tolerates). A
// type-mismatched or missing field is reported absent rather than an
// error, per the accessor contract spec.md's design notes call for.
func stringField(m map[string]any, key string) (string, bool) {
	raw, present := m[key]
	if !present {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case map[string]any:
		if s, ok := v["value"].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
