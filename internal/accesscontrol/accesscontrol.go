package accesscontrol

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fleetdesk/console/internal/config"
	"github.com/fleetdesk/console/internal/utils"
)

// CheckAccess decides whether a logged in user may open path in the console.
// Only the roles claim is looked at: whatever the console lets through, the backend still checks on its side.
func CheckAccess(conf *config.Config, username string, roles []string, path string) error {
	if mandatory := conf.AccessControl.MandatoryRole; mandatory != "" && !utils.Contains(roles, mandatory) {
		return fmt.Errorf("user (%s) is missing the mandatory role %s", username, mandatory)
	}

	if conf.AccessControl.DisableACLRules {
		return nil
	}

	// Paths no route group mentions are open to anyone who is logged in
	if !utils.SliceHasMatch(conf.GuardedPatterns(), path) {
		return nil
	}

	acls := conf.GetFlatACLs()
	for _, roleName := range roles {
		if utils.SliceHasMatch(acls[roleName], path) {
			return nil
		}
	}

	return fmt.Errorf("user (%s) tried to access a route they are not authorised to access (%s)", username, path)
}

// VerifyRedirectPath only allows redirects that stay inside the console.
func VerifyRedirectPath(redirect string) bool {
	if !strings.HasPrefix(redirect, "/") || strings.HasPrefix(redirect, "//") || strings.HasPrefix(redirect, "/\\") {
		return false
	}

	u, err := url.Parse(redirect)
	if err != nil {
		return false
	}

	return u.Scheme == "" && u.Host == ""
}
