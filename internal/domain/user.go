package domain

import "encoding/json"

// User is the profile summary the backend returns for conversation partners.
// The store treats it as opaque beyond its ID.
type User struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName,omitempty"`
	Email      string `json:"email,omitempty"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// UnmarshalJSON accepts both "_id" and "id" as the identifier key.
func (u *User) UnmarshalJSON(data []byte) error {
	type alias User
	aux := struct {
		*alias
		AltID string `json:"id"`
	}{alias: (*alias)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = aux.AltID
	}
	return nil
}

// HasID reports whether the user carries a usable identifier.
func (u *User) HasID() bool {
	return u != nil && u.ID != ""
}
