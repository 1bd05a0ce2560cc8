package models

import "strings"

// Identity is the signed-in user as seen by one client session.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Token string `json:"-"`
}

// FirstName is the first space-separated word of the display name.
func (i *Identity) FirstName() string {
	if i == nil {
		return ""
	}
	name, _, _ := strings.Cut(strings.TrimSpace(i.Name), " ")
	return name
}

// Profile is the stored display name for an identity id.
type Profile struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}
