package certificate

import (
	"github.com/trezcool/sanaa/core/user"
)

// Action is something a Caller wants to do with a Certificate.
type Action string

const (
	ActionView     Action = "view"
	ActionGenerate Action = "generate"
	ActionSend     Action = "send"
	ActionDelete   Action = "delete"
	ActionDownload Action = "download"
	ActionPublish  Action = "publish"
	ActionRevoke   Action = "revoke-links"
)

// LinkClaims are the unverified parts of a secure recipient link.
type LinkClaims struct {
	RecipientID string
	Token       string
}

// Caller is whoever is acting on certificates: a logged-in user or an anonymous link holder.
// It is rebuilt on every request, never cached.
type Caller struct {
	UserID           string
	Role             user.Role // empty when anonymous
	OrganizationName string
	OrganizationID   string
	Link             *LinkClaims
}

func CallerFromUser(usr user.User, orgID string) Caller {
	return Caller{
		UserID:           usr.ID,
		Role:             usr.Role,
		OrganizationName: usr.OrganizationName,
		OrganizationID:   orgID,
	}
}

func (c Caller) IsAnonymous() bool { return c.Role == "" }

type rule struct {
	role    user.Role
	sameOrg bool // certificate.IssuedFrom must equal caller.OrganizationName
	viaLink bool // anonymous, with a link valid for this certificate
	actions []Action
}

// accessRules is evaluated top to bottom; the first rule matching role, scope and action wins.
// Anything unmatched is denied.
var accessRules = []rule{
	{role: user.RoleSuperAdmin, actions: adminActions},
	{role: user.RoleAdmin, sameOrg: true, actions: adminActions},
	{role: "", viaLink: true, actions: []Action{ActionView, ActionDownload}},
}

var adminActions = []Action{
	ActionView, ActionGenerate, ActionSend, ActionDelete, ActionDownload, ActionPublish, ActionRevoke,
}

// Gate authorizes every certificate operation.
type Gate struct {
	links *LinkIssuer
}

func NewGate(links *LinkIssuer) *Gate {
	return &Gate{links: links}
}

// Authorize returns nil when caller may perform action on cert,
// ErrUnauthorized for anonymous callers without a valid link and ErrForbidden otherwise.
func (g *Gate) Authorize(caller Caller, cert Certificate, action Action) error {
	linkOK := caller.IsAnonymous() && caller.Link != nil &&
		g.links.VerifyLink(cert, caller.Link.RecipientID, caller.Link.Token) == nil

	for _, r := range accessRules {
		if r.role != caller.Role {
			continue
		}
		if r.sameOrg && cert.IssuedFrom != caller.OrganizationName {
			continue
		}
		if r.viaLink && !linkOK {
			continue
		}
		if hasAction(r.actions, action) {
			return nil
		}
	}

	if caller.IsAnonymous() {
		return ErrUnauthorized
	}
	return ErrForbidden
}

// CanManage tells whether caller may act, as an admin, on certificates issued from orgName.
func CanManage(caller Caller, orgName string) bool {
	switch caller.Role {
	case user.RoleSuperAdmin:
		return true
	case user.RoleAdmin:
		return caller.OrganizationName != "" && caller.OrganizationName == orgName
	}
	return false
}

func hasAction(actions []Action, action Action) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}
