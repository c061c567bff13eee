package models

import (
	"piiquante/internal/ledger"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Sauce JSON keys follow the existing web client (_id, userId, usersLiked...).
type Sauce struct {
	ID            string    `gorm:"primaryKey;size:36" json:"_id"`
	UserID        string    `gorm:"size:36;not null;index" json:"userId"` // owner
	Name          string    `gorm:"size:120;not null" json:"name"`
	Manufacturer  string    `gorm:"size:120;not null" json:"manufacturer"`
	Description   string    `gorm:"type:text;not null" json:"description"`
	MainPepper    string    `gorm:"size:120;not null" json:"mainPepper"`
	ImageURL      string    `gorm:"size:512;not null" json:"imageUrl"`
	Heat          int       `gorm:"not null" json:"heat"`
	Likes         int       `gorm:"not null;default:0" json:"likes"`
	Dislikes      int       `gorm:"not null;default:0" json:"dislikes"`
	UsersLiked    []string  `gorm:"type:text;serializer:json" json:"usersLiked"`
	UsersDisliked []string  `gorm:"type:text;serializer:json" json:"usersDisliked"`
	Version       int64     `gorm:"not null;default:1" json:"-"` // bumped on every write
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	// filled on read, not stored
	DescriptionHTML string `gorm:"-" json:"descriptionHtml,omitempty"`
}

func (s *Sauce) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Version == 0 {
		s.Version = 1
	}
	return nil
}

// VoteState returns the vote lists and counters as a ledger state.
func (s *Sauce) VoteState() ledger.State {
	return ledger.State{
		LikedBy:    s.UsersLiked,
		DislikedBy: s.UsersDisliked,
		Likes:      s.Likes,
		Dislikes:   s.Dislikes,
	}
}

// SetVoteState copies st into the sauce.
func (s *Sauce) SetVoteState(st ledger.State) {
	s.UsersLiked = st.LikedBy
	s.UsersDisliked = st.DislikedBy
	s.Likes = st.Likes
	s.Dislikes = st.Dislikes
}
