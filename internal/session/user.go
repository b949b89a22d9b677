package session

import (
	"encoding/json"
)

// User is what the console knows about the operator, decoded from the token
// plus whatever extra fields were cached from earlier lookups.
type User struct {
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	TokenExp    int64    `json:"tokenExp"`

	// Cached extras such as a display name. Never overrides the fields above.
	Profile map[string]any `json:"-"`
}

func userFromClaims(c *Claims) *User {
	return &User{
		Username:    c.Subject,
		Roles:       c.Roles,
		Permissions: c.Permissions,
		TokenExp:    c.ExpiresAt,
		Profile:     map[string]any{},
	}
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) HasPermission(perm string) bool {
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

func (u *User) DisplayName() string {
	if name, ok := u.Profile["displayName"].(string); ok && name != "" {
		return name
	}
	return u.Username
}

func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Roles = append([]string{}, u.Roles...)
	cp.Permissions = append([]string{}, u.Permissions...)
	cp.Profile = make(map[string]any, len(u.Profile))
	for k, v := range u.Profile {
		cp.Profile[k] = v
	}
	return &cp
}

var claimKeys = []string{"username", "roles", "permissions", "tokenExp"}

// profileJSON is the cached profile entry: extras first, decoded fields on top.
func (u *User) profileJSON() (string, error) {
	out := make(map[string]any, len(u.Profile)+len(claimKeys))
	for k, v := range u.Profile {
		out[k] = v
	}
	out["username"] = u.Username
	out["roles"] = u.Roles
	out["permissions"] = u.Permissions
	out["tokenExp"] = u.TokenExp

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// mergeProfile folds a cached profile entry into u. Fields decoded from the token always win.
func (u *User) mergeProfile(cached string) error {
	extras := map[string]any{}
	if err := json.Unmarshal([]byte(cached), &extras); err != nil {
		return err
	}
	for _, k := range claimKeys {
		delete(extras, k)
	}
	if u.Profile == nil {
		u.Profile = map[string]any{}
	}
	for k, v := range extras {
		u.Profile[k] = v
	}
	return nil
}
