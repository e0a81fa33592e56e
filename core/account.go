package core

import "time"

// DefaultTier is assigned to every new account.
const DefaultTier = "standard"

// Account is the profile record owned by a wallet address.
type Account struct {
	Address     string
	Handle      *string
	DisplayName *string
	Bio         *string
	AvatarURL   *string
	Tier        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HandleValue returns the handle or an empty string when unassigned.
func (a *Account) HandleValue() string {
	if a.Handle == nil {
		return ""
	}
	return *a.Handle
}

// ProfileUpdate carries the user-editable account fields.
// Nil fields are left untouched, empty strings clear the column.
type ProfileUpdate struct {
	DisplayName *string
	Bio         *string
}

// PublicProfile is the subset of an account shown to anyone.
type PublicProfile struct {
	Handle      string    `json:"handle"`
	DisplayName *string   `json:"display_name"`
	Bio         *string   `json:"bio"`
	AvatarURL   *string   `json:"avatar_url"`
	Address     string    `json:"address"`
	JoinedAt    time.Time `json:"joined_at"`
	Tier        string    `json:"tier"`
}

// Public projects the account into its public view.
func (a *Account) Public() PublicProfile {
	return PublicProfile{
		Handle:      a.HandleValue(),
		DisplayName: a.DisplayName,
		Bio:         a.Bio,
		AvatarURL:   a.AvatarURL,
		Address:     a.Address,
		JoinedAt:    a.CreatedAt,
		Tier:        a.Tier,
	}
}

// Blob is a stored binary object such as an avatar image.
type Blob struct {
	Key         string
	ContentType string
	Data        []byte
}
