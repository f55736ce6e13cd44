// Package rbac holds the sheet status codes and the access predicates built on them.
package rbac

type Status int

const (
	StatusPrivate    Status = 0
	StatusLinkView   Status = 1
	StatusLinkEdit   Status = 2
	StatusPublicView Status = 3
	StatusPublicEdit Status = 4
	StatusTopic      Status = 5
	StatusPartner    Status = 6
)

func (s Status) Valid() bool {
	return s >= StatusPrivate && s <= StatusPartner
}

// Listed statuses appear in the public sheet list and in search results.
func (s Status) Listed() bool {
	return s == StatusPublicView || s == StatusPublicEdit
}

// Editable statuses let users other than the owner edit the sheet.
func (s Status) Editable() bool {
	return s == StatusLinkEdit || s == StatusPublicEdit
}

// Viewer is the requesting user. A zero UserID is an anonymous request.
type Viewer struct {
	UserID int64
	Groups []string
}

func (v Viewer) Authenticated() bool {
	return v.UserID > 0
}

func (v Viewer) InGroup(name string) bool {
	for _, group := range v.Groups {
		if group == name {
			return true
		}
	}
	return false
}

func IsOwner(owner int64, viewer Viewer) bool {
	return viewer.Authenticated() && owner == viewer.UserID
}

func CanEdit(owner int64, status Status, viewer Viewer) bool {
	return IsOwner(owner, viewer) || status.Editable()
}

// CanView allows everything except partner sheets, which need ownership or
// membership in the sheet's group.
func CanView(owner int64, status Status, group string, viewer Viewer) bool {
	if status != StatusPartner {
		return true
	}
	return IsOwner(owner, viewer) || (viewer.Authenticated() && viewer.InGroup(group))
}
