package adtool

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// LDAPProbe is an optional secondary reachability check against the AD
// domain controller: a plain bind plus a base-object search, run
// independent of the directory-tool exec path this package otherwise
// uses. It never backs a SCIM operation, only GET /healthz.
type LDAPProbe struct {
	URL      string
	BindDN   string
	Password string
	BaseDN   string
}

// Check dials, binds, and searches BaseDN. An empty URL disables the
// probe entirely (Check returns nil), since most deployments rely on
// the directory-tool path alone.
func (p LDAPProbe) Check(ctx context.Context) error {
	if p.URL == "" {
		return nil
	}

	conn, err := ldap.DialURL(p.URL)
	if err != nil {
		return fmt.Errorf("ldap dial: %w", err)
	}
	defer conn.Close()

	if err := conn.Bind(p.BindDN, p.Password); err != nil {
		return fmt.Errorf("ldap bind: %w", err)
	}

	_, err = conn.SearchWithPaging(&ldap.SearchRequest{
		BaseDN: p.BaseDN,
		Scope:  ldap.ScopeBaseObject,
		Filter: "(objectClass=*)",
	}, 1)
	if err != nil {
		return fmt.Errorf("ldap search: %w", err)
	}
	return nil
}
