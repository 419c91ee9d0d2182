package scim

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FormatUser builds the User envelope served to callers from a stored
// SCIM view plus the cache row data that's authoritative when a field
// is absent from the view (e.g. userName falls back to sam_account_name).
func FormatUser(view map[string]any, rowID, samAccountName string, createdAt, updatedAt, baseURL string) User {
	u := decodeView(view)

	u.Schemas = []string{UserSchema}
	if u.ID == "" {
		u.ID = rowID
	}
	if u.UserName == "" {
		u.UserName = samAccountName
	}

	u.Meta = &Meta{
		ResourceType: "User",
		Created:      createdAt,
		LastModified: updatedAt,
		Location:     fmt.Sprintf("%s/scim/v2/Users/%s", baseURL, rowID),
	}

	return u
}

// decodeView round-trips the stored, untyped SCIM view through the
// typed User struct so unknown keys are dropped but every mapped field
// is preserved; json.Marshal/Unmarshal tolerates the map's dynamic
// shape without a bespoke walker.
func decodeView(view map[string]any) User {
	var u User
	b, err := json.Marshal(view)
	if err != nil {
		return User{}
	}
	_ = json.Unmarshal(b, &u)
	return u
}

// FormatList builds the ListResponse envelope.
func FormatList(users []User, totalResults, startIndex int) ListResponse {
	if users == nil {
		users = []User{}
	}
	return ListResponse{
		Schemas:      []string{ListSchema},
		TotalResults: totalResults,
		StartIndex:   startIndex,
		ItemsPerPage: len(users),
		Resources:    users,
	}
}

// FormatError builds the Error envelope.
func FormatError(status int, scimType, detail string) Error {
	return Error{
		Schemas:  []string{ErrorSchema},
		Status:   strconv.Itoa(status),
		ScimType: scimType,
		Detail:   detail,
	}
}
