package models

// User is the directory read model for chat participants. Accounts are
// created and maintained by the identity subsystem; the messaging core only
// reads display fields, never credentials.
type User struct {
	Model
	Fullname     string `json:"fullname"`
	Username     string `json:"username" gorm:"unique;not null"`
	Email        string `json:"email" gorm:"unique;not null"`
	ThumbNailURL string `json:"thumbnail_url,omitempty"`
	Online       bool   `json:"online"`
	DeviceToken  string `json:"-"`
}

// Participant is the user shape embedded in conversation and message
// responses.
type Participant struct {
	ID           uint   `json:"id"`
	Fullname     string `json:"fullname"`
	Username     string `json:"username"`
	ThumbNailURL string `json:"thumbnail_url,omitempty"`
}

func (u *User) AsParticipant() Participant {
	return Participant{
		ID:           u.ID,
		Fullname:     u.Fullname,
		Username:     u.Username,
		ThumbNailURL: u.ThumbNailURL,
	}
}
