package gate

import "linkdesk.org/internal/catalog"

// AdminGroup names the group claim that grants administrative access.
const AdminGroup = "admin"

// IsAdmin reports whether the identity carries the admin group.
func IsAdmin(id catalog.Identity) bool {
	for _, g := range id.Groups {
		if g == AdminGroup {
			return true
		}
	}
	return false
}

// CanView reports whether the identity's groups intersect the entry's
// allowed groups.
func CanView(id catalog.Identity, svc catalog.Service) bool {
	return catalog.GroupsIntersect(id.Groups, svc.Groups)
}

// OwnsMessage reports whether the identity is the message's recipient.
func OwnsMessage(id catalog.Identity, m catalog.Message) bool {
	return m.Recipient == id.Key
}

// OwnsFavorite reports whether the identity owns the favorite. There is no
// admin override for favorites anywhere.
func OwnsFavorite(id catalog.Identity, f catalog.Favorite) bool {
	return f.Owner == id.Key
}
