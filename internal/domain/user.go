package domain

import (
	"slices"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	Avatar       *string   `json:"avatar,omitempty"`
	LastLogin    time.Time `json:"last_login"`
	IsOnline     bool      `json:"is_online"`
	Friends      []string  `json:"friends"`
}

// UserPatch lists the fields to change on an existing user. Nil fields are left as they are.
type UserPatch struct {
	Email        *string
	PasswordHash *string
	DisplayName  *string
	Avatar       *string
	LastLogin    *time.Time
	IsOnline     *bool
	Friends      *[]string
}

// Apply returns a copy of u with the patch merged over it. The id never changes.
func (p UserPatch) Apply(u User) User {
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.Avatar != nil {
		avatar := *p.Avatar
		u.Avatar = &avatar
	}
	if p.LastLogin != nil {
		u.LastLogin = *p.LastLogin
	}
	if p.IsOnline != nil {
		u.IsOnline = *p.IsOnline
	}
	if p.Friends != nil {
		u.Friends = slices.Clone(*p.Friends)
	}
	return u
}

// Public is the session view of a user: everything except credentials.
func (u User) Public() User {
	u.PasswordHash = ""
	u.Friends = slices.Clone(u.Friends)
	if u.Friends == nil {
		u.Friends = []string{}
	}
	return u
}

func (u User) HasFriend(id string) bool {
	return slices.Contains(u.Friends, id)
}

// ProfileUpdate is the subset of a user a signed in user may change about themselves.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	Avatar      *string `json:"avatar,omitempty"`
}
