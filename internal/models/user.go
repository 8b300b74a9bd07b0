package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type NotificationPrefs struct {
	Email bool `bson:"email" json:"email"`
	Push  bool `bson:"push" json:"push"`
}

// User represents an account. Third-party tokens are kept in the credential store, not here.
type User struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username          string             `bson:"username" json:"username"`
	Email             string             `bson:"email" json:"email"`
	HashedPassword    string             `bson:"hashed_password" json:"-"`
	Role              string             `bson:"role" json:"role"`
	NotificationPrefs NotificationPrefs  `bson:"notification_prefs" json:"notificationPrefs"`
	LastActiveAt      time.Time          `bson:"last_active_at,omitempty" json:"lastActiveAt,omitempty"`
	CreatedAt         time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updatedAt"`
}

type PublicUser struct {
	ID       primitive.ObjectID `json:"id"`
	Username string             `json:"username"`
	Email    string             `json:"email"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Email: u.Email}
}
