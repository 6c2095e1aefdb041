package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tasksync/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	userColumns       = "id, name, email, password_hash, provider, role, phone, gender, birth_date, email_verified_at, created_at, updated_at"
	projectColumns    = "id, name, description, start_date, deadline, creator_id, created_at, updated_at"
	taskColumns       = "id, project_id, assignee_id, title, description, deadline, status, created_at, updated_at"
	friendshipColumns = "id, requester_id, addressee_id, status, created_at, accepted_at"
)

// Postgres implements Store on top of sqlx. q is either the pool or the
// transaction the store was opened in.
type Postgres struct {
	db *sqlx.DB
	q  sqlx.ExtContext
}

func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db, q: db}
}

// mapError translates driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
		case "23503", "23514":
			return fmt.Errorf("%w: %s", ErrInvalidReference, pqErr.Constraint)
		}
	}
	return err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if _, ok := p.q.(*sqlx.Tx); ok {
		return fn(p)
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback() }()

	if err := fn(&Postgres{db: p.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	return nil
}

// Users

func (p *Postgres) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = models.NormalizeEmail(u.Email)
	err := p.q.QueryRowxContext(ctx,
		`INSERT INTO users (name, email, password_hash, provider, role, email_verified_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		u.Name, u.Email, u.PasswordHash, u.Provider, u.Role, u.EmailVerifiedAt,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return mapError(err)
}

func (p *Postgres) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, p.q, &u, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, p.q, &u, "SELECT "+userColumns+" FROM users WHERE email = $1", models.NormalizeEmail(email))
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (p *Postgres) UpdateProfile(ctx context.Context, id int64, upd ProfileUpdate) (*models.User, error) {
	// nil fields keep the stored value
	var u models.User
	err := sqlx.GetContext(ctx, p.q, &u, `
		UPDATE users
		SET name = COALESCE($1, name),
			phone = COALESCE($2, phone),
			gender = COALESCE($3, gender),
			birth_date = COALESCE($4, birth_date),
			updated_at = NOW()
		WHERE id = $5
		RETURNING `+userColumns,
		upd.Name, upd.Phone, upd.Gender, upd.BirthDate, id,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (p *Postgres) SetPassword(ctx context.Context, id int64, hash string) error {
	res, err := p.q.ExecContext(ctx, "UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2", hash, id)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (p *Postgres) MarkVerified(ctx context.Context, id int64, at time.Time) error {
	res, err := p.q.ExecContext(ctx, "UPDATE users SET email_verified_at = $1, updated_at = NOW() WHERE id = $2", at, id)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (p *Postgres) SetRole(ctx context.Context, id int64, role models.Role) error {
	res, err := p.q.ExecContext(ctx, "UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2", role, id)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (p *Postgres) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := sqlx.SelectContext(ctx, p.q, &users, "SELECT "+userColumns+" FROM users ORDER BY id"); err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

func (p *Postgres) SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]models.UserSummary, error) {
	users := []models.UserSummary{}
	err := sqlx.SelectContext(ctx, p.q, &users, `
		SELECT id, name, email FROM users
		WHERE id <> $1 AND (name ILIKE $2 OR email ILIKE $2)
		ORDER BY name
		LIMIT $3`,
		excludeID, "%"+query+"%", limit,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

func (p *Postgres) MissingUsers(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []int64
	if err := sqlx.SelectContext(ctx, p.q, &found, "SELECT id FROM users WHERE id = ANY($1)", pq.Array(ids)); err != nil {
		return nil, mapError(err)
	}
	return diffIDs(ids, found), nil
}

// Projects

func (p *Postgres) CreateProject(ctx context.Context, pr *models.Project) error {
	err := p.q.QueryRowxContext(ctx,
		`INSERT INTO projects (name, description, start_date, deadline, creator_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		pr.Name, pr.Description, pr.StartDate, pr.Deadline, pr.CreatorID,
	).Scan(&pr.ID, &pr.CreatedAt, &pr.UpdatedAt)
	return mapError(err)
}

func (p *Postgres) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	var pr models.Project
	if err := sqlx.GetContext(ctx, p.q, &pr, "SELECT "+projectColumns+" FROM projects WHERE id = $1", id); err != nil {
		return nil, mapError(err)
	}
	return &pr, nil
}

func (p *Postgres) UpdateProject(ctx context.Context, pr *models.Project) error {
	err := p.q.QueryRowxContext(ctx,
		`UPDATE projects
		 SET name = $1, description = $2, start_date = $3, deadline = $4, updated_at = NOW()
		 WHERE id = $5
		 RETURNING updated_at`,
		pr.Name, pr.Description, pr.StartDate, pr.Deadline, pr.ID,
	).Scan(&pr.UpdatedAt)
	return mapError(err)
}

func (p *Postgres) DeleteProject(ctx context.Context, id int64) error {
	// project_members and tasks go with it (ON DELETE CASCADE)
	res, err := p.q.ExecContext(ctx, "DELETE FROM projects WHERE id = $1", id)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (p *Postgres) ListProjectsForUser(ctx context.Context, userID int64) ([]models.Project, error) {
	projects := []models.Project{}
	err := sqlx.SelectContext(ctx, p.q, &projects, `
		SELECT p.id, p.name, p.description, p.start_date, p.deadline, p.creator_id, p.created_at, p.updated_at
		FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE m.user_id = $1
		ORDER BY p.deadline ASC, p.id ASC`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return projects, nil
}

func (p *Postgres) ListProjects(ctx context.Context) ([]models.Project, error) {
	projects := []models.Project{}
	if err := sqlx.SelectContext(ctx, p.q, &projects, "SELECT "+projectColumns+" FROM projects ORDER BY id"); err != nil {
		return nil, mapError(err)
	}
	return projects, nil
}

func (p *Postgres) AddMember(ctx context.Context, m *models.ProjectMember) (bool, error) {
	err := p.q.QueryRowxContext(ctx,
		`INSERT INTO project_members (project_id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, user_id) DO NOTHING
		 RETURNING id, joined_at`,
		m.ProjectID, m.UserID, m.Role,
	).Scan(&m.ID, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapError(err)
	}
	return true, nil
}

func (p *Postgres) GetMember(ctx context.Context, projectID, userID int64) (*models.ProjectMember, error) {
	var m models.ProjectMember
	err := sqlx.GetContext(ctx, p.q, &m,
		"SELECT id, project_id, user_id, role, joined_at FROM project_members WHERE project_id = $1 AND user_id = $2",
		projectID, userID)
	if err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

func (p *Postgres) ListMembers(ctx context.Context, projectID int64) ([]models.ProjectMember, error) {
	members := []models.ProjectMember{}
	err := sqlx.SelectContext(ctx, p.q, &members, `
		SELECT m.id, m.project_id, m.user_id, m.role, m.joined_at, u.name AS user_name, u.email AS user_email
		FROM project_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.project_id = $1
		ORDER BY m.role, m.joined_at, m.id`, projectID)
	if err != nil {
		return nil, mapError(err)
	}
	return members, nil
}

// Tasks

func (p *Postgres) CreateTask(ctx context.Context, t *models.Task) error {
	err := p.q.QueryRowxContext(ctx,
		`INSERT INTO tasks (project_id, assignee_id, title, description, deadline, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		t.ProjectID, t.AssigneeID, t.Title, t.Description, t.Deadline, t.Status,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return mapError(err)
}

func (p *Postgres) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	var t models.Task
	if err := sqlx.GetContext(ctx, p.q, &t, "SELECT "+taskColumns+" FROM tasks WHERE id = $1", id); err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}

func (p *Postgres) UpdateTask(ctx context.Context, t *models.Task) error {
	err := p.q.QueryRowxContext(ctx,
		`UPDATE tasks
		 SET title = $1, description = $2, deadline = $3, assignee_id = $4, status = $5, updated_at = NOW()
		 WHERE id = $6
		 RETURNING updated_at`,
		t.Title, t.Description, t.Deadline, t.AssigneeID, t.Status, t.ID,
	).Scan(&t.UpdatedAt)
	return mapError(err)
}

func (p *Postgres) UpdateTaskStatus(ctx context.Context, id int64, status models.TaskStatus) error {
	res, err := p.q.ExecContext(ctx, "UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (p *Postgres) DeleteTask(ctx context.Context, id int64) error {
	res, err := p.q.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (p *Postgres) ListTasksByProject(ctx context.Context, projectID int64) ([]models.Task, error) {
	tasks := []models.Task{}
	err := sqlx.SelectContext(ctx, p.q, &tasks,
		"SELECT "+taskColumns+" FROM tasks WHERE project_id = $1 ORDER BY deadline ASC, id ASC", projectID)
	if err != nil {
		return nil, mapError(err)
	}
	return tasks, nil
}

func (p *Postgres) ListTasksByProjects(ctx context.Context, projectIDs []int64) ([]models.Task, error) {
	tasks := []models.Task{}
	if len(projectIDs) == 0 {
		return tasks, nil
	}
	err := sqlx.SelectContext(ctx, p.q, &tasks,
		"SELECT "+taskColumns+" FROM tasks WHERE project_id = ANY($1) ORDER BY deadline ASC, id ASC", pq.Array(projectIDs))
	if err != nil {
		return nil, mapError(err)
	}
	return tasks, nil
}

func (p *Postgres) ListTasksByAssignee(ctx context.Context, userID int64) ([]models.Task, error) {
	tasks := []models.Task{}
	err := sqlx.SelectContext(ctx, p.q, &tasks,
		"SELECT "+taskColumns+" FROM tasks WHERE assignee_id = $1 ORDER BY deadline ASC, id ASC", userID)
	if err != nil {
		return nil, mapError(err)
	}
	return tasks, nil
}

// Friendships

func (p *Postgres) CreateFriendship(ctx context.Context, f *models.Friendship) error {
	err := p.q.QueryRowxContext(ctx,
		`INSERT INTO friendships (requester_id, addressee_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		f.RequesterID, f.AddresseeID, f.Status,
	).Scan(&f.ID, &f.CreatedAt)
	return mapError(err)
}

func (p *Postgres) GetFriendship(ctx context.Context, id int64) (*models.Friendship, error) {
	var f models.Friendship
	if err := sqlx.GetContext(ctx, p.q, &f, "SELECT "+friendshipColumns+" FROM friendships WHERE id = $1", id); err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func (p *Postgres) FindFriendship(ctx context.Context, a, b int64) (*models.Friendship, error) {
	var f models.Friendship
	err := sqlx.GetContext(ctx, p.q, &f, `
		SELECT `+friendshipColumns+` FROM friendships
		WHERE (requester_id = $1 AND addressee_id = $2) OR (requester_id = $2 AND addressee_id = $1)`,
		a, b)
	if err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func (p *Postgres) AcceptFriendship(ctx context.Context, id int64, at time.Time) error {
	res, err := p.q.ExecContext(ctx,
		"UPDATE friendships SET status = 'ACCEPTED', accepted_at = $1 WHERE id = $2 AND status = 'PENDING'", at, id)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (p *Postgres) DeleteFriendship(ctx context.Context, id int64) error {
	res, err := p.q.ExecContext(ctx, "DELETE FROM friendships WHERE id = $1", id)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (p *Postgres) ListFriendships(ctx context.Context, userID int64) ([]models.Friendship, error) {
	friendships := []models.Friendship{}
	err := sqlx.SelectContext(ctx, p.q, &friendships,
		"SELECT "+friendshipColumns+" FROM friendships WHERE requester_id = $1 OR addressee_id = $1 ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, mapError(err)
	}
	return friendships, nil
}

// diffIDs returns the distinct values of want that are not in have, in order.
func diffIDs(want, have []int64) []int64 {
	seen := make(map[int64]bool, len(have))
	for _, id := range have {
		seen[id] = true
	}
	var missing []int64
	for _, id := range want {
		if !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	return missing
}
var _ Store = (*Postgres)(nil)
