package repository

import (
	"context"
	"errors"
	"time"

	"tasksync/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("conflict")
	// ErrInvalidReference is returned when a write points at a row that does not exist.
	ErrInvalidReference = errors.New("invalid reference")
)

type ProfileUpdate struct {
	Name      *string
	Phone     *string
	Gender    *string
	BirthDate *time.Time
}

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*models.User, error)
	SetPassword(ctx context.Context, id int64, hash string) error
	MarkVerified(ctx context.Context, id int64, at time.Time) error
	SetRole(ctx context.Context, id int64, role models.Role) error
	ListUsers(ctx context.Context) ([]models.User, error)
	SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]models.UserSummary, error)
	// MissingUsers returns the ids from ids that have no user row.
	MissingUsers(ctx context.Context, ids []int64) ([]int64, error)
}

type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id int64) error
	ListProjectsForUser(ctx context.Context, userID int64) ([]models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)

	// AddMember inserts the membership unless the (project, user) pair
	// already has one, in which case the existing row is left untouched.
	AddMember(ctx context.Context, m *models.ProjectMember) (bool, error)
	GetMember(ctx context.Context, projectID, userID int64) (*models.ProjectMember, error)
	ListMembers(ctx context.Context, projectID int64) ([]models.ProjectMember, error)
}

type TaskStore interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, id int64) (*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	UpdateTaskStatus(ctx context.Context, id int64, status models.TaskStatus) error
	DeleteTask(ctx context.Context, id int64) error
	ListTasksByProject(ctx context.Context, projectID int64) ([]models.Task, error)
	ListTasksByProjects(ctx context.Context, projectIDs []int64) ([]models.Task, error)
	ListTasksByAssignee(ctx context.Context, userID int64) ([]models.Task, error)
}

type FriendshipStore interface {
	CreateFriendship(ctx context.Context, f *models.Friendship) error
	GetFriendship(ctx context.Context, id int64) (*models.Friendship, error)
	// FindFriendship looks the pair up in either direction.
	FindFriendship(ctx context.Context, a, b int64) (*models.Friendship, error)
	AcceptFriendship(ctx context.Context, id int64, at time.Time) error
	DeleteFriendship(ctx context.Context, id int64) error
	ListFriendships(ctx context.Context, userID int64) ([]models.Friendship, error)
}

// Store is the relational store the handlers work against.
type Store interface {
	UserStore
	ProjectStore
	TaskStore
	FriendshipStore

	// WithTx runs fn inside one transaction. The Store passed to fn must be
	// used for every read and write that belongs to the transaction; any
	// error returned by fn rolls the whole unit back.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
