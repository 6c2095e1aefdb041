package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

const (
	ProviderCredentials = "credentials"
	ProviderGoogle      = "google"
)

const (
	GenderMale   = "LAKI_LAKI"
	GenderFemale = "PEREMPUAN"
)

type MemberRole string

const (
	MemberManager MemberRole = "MANAGER"
	MemberMember  MemberRole = "MEMBER"
)

type TaskStatus string

const (
	TaskPending TaskStatus = "BELUM_SELESAI"
	TaskDone    TaskStatus = "SELESAI"
)

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "PENDING"
	FriendshipAccepted FriendshipStatus = "ACCEPTED"
)

type User struct {
	ID              int64      `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Email           string     `db:"email" json:"email"`
	PasswordHash    *string    `db:"password_hash" json:"-"`
	Provider        string     `db:"provider" json:"provider"`
	Role            Role       `db:"role" json:"role"`
	Phone           *string    `db:"phone" json:"phone"`
	Gender          *string    `db:"gender" json:"gender"`
	BirthDate       *time.Time `db:"birth_date" json:"birth_date"`
	EmailVerifiedAt *time.Time `db:"email_verified_at" json:"email_verified_at"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// HasPassword is false for accounts created through an OAuth provider
// that never set a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) Verified() bool {
	return u.EmailVerifiedAt != nil
}

// UserSummary is the public view of another user, e.g. in member lists.
type UserSummary struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}

type Project struct {
	ID          int64      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	StartDate   *time.Time `db:"start_date" json:"start_date"`
	Deadline    time.Time  `db:"deadline" json:"deadline"`
	CreatorID   int64      `db:"creator_id" json:"creator_id"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

type ProjectMember struct {
	ID        int64      `db:"id" json:"id"`
	ProjectID int64      `db:"project_id" json:"project_id"`
	UserID    int64      `db:"user_id" json:"user_id"`
	Role      MemberRole `db:"role" json:"role"`
	UserName  string     `db:"user_name" json:"user_name,omitempty"`
	UserEmail string     `db:"user_email" json:"user_email,omitempty"`
	JoinedAt  time.Time  `db:"joined_at" json:"joined_at"`
}

type Task struct {
	ID          int64      `db:"id" json:"id"`
	ProjectID   int64      `db:"project_id" json:"project_id"`
	AssigneeID  int64      `db:"assignee_id" json:"assignee_id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	Deadline    time.Time  `db:"deadline" json:"deadline"`
	Status      TaskStatus `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

type Friendship struct {
	ID          int64            `db:"id" json:"id"`
	RequesterID int64            `db:"requester_id" json:"requester_id"`
	AddresseeID int64            `db:"addressee_id" json:"addressee_id"`
	Status      FriendshipStatus `db:"status" json:"status"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	AcceptedAt  *time.Time       `db:"accepted_at" json:"accepted_at"`
}

// Involves reports whether userID is either side of the friendship.
func (f *Friendship) Involves(userID int64) bool {
	return f.RequesterID == userID || f.AddresseeID == userID
}

// Other returns the id of the party that is not userID.
func (f *Friendship) Other(userID int64) int64 {
	if f.RequesterID == userID {
		return f.AddresseeID
	}
	return f.RequesterID
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
