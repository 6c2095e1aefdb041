// Package memory is an in-process repository.Store. It backs STORAGE=memory
// and the handler tests, and enforces the same constraints as the
// PostgreSQL schema: unique emails, one membership per (project, user), one
// friendship per unordered pair, foreign keys and the project cascade.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"tasksync/internal/models"
	"tasksync/internal/repository"
)

type state struct {
	seq         int64
	users       map[int64]models.User
	projects    map[int64]models.Project
	members     map[int64]models.ProjectMember
	tasks       map[int64]models.Task
	friendships map[int64]models.Friendship
}

func (s *state) clone() *state {
	c := &state{
		seq:         s.seq,
		users:       make(map[int64]models.User, len(s.users)),
		projects:    make(map[int64]models.Project, len(s.projects)),
		members:     make(map[int64]models.ProjectMember, len(s.members)),
		tasks:       make(map[int64]models.Task, len(s.tasks)),
		friendships: make(map[int64]models.Friendship, len(s.friendships)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.tasks {
		c.tasks[k] = v
	}
	for k, v := range s.friendships {
		c.friendships[k] = v
	}
	return c
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

type Store struct {
	mu   *sync.Mutex
	root **state
	st   *state
	inTx bool
}

func New() *Store {
	st := &state{
		users:       map[int64]models.User{},
		projects:    map[int64]models.Project{},
		members:     map[int64]models.ProjectMember{},
		tasks:       map[int64]models.Task{},
		friendships: map[int64]models.Friendship{},
	}
	return &Store{mu: &sync.Mutex{}, root: &st}
}

var _ repository.Store = (*Store)(nil)

// view locks the store (outside a transaction) and returns the state to work on.
func (s *Store) view() (*state, func()) {
	if s.inTx {
		return s.st, func() {}
	}
	s.mu.Lock()
	return *s.root, s.mu.Unlock
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, root: s.root, st: (*s.root).clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	*s.root = tx.st
	return nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	st, done := s.view()
	defer done()

	u.Email = models.NormalizeEmail(u.Email)
	for _, existing := range st.users {
		if existing.Email == u.Email {
			return repository.ErrConflict
		}
	}
	now := time.Now()
	u.ID = st.next()
	u.CreatedAt, u.UpdatedAt = now, now
	st.users[u.ID] = *u
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	st, done := s.view()
	defer done()

	u, ok := st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	st, done := s.view()
	defer done()

	email = models.NormalizeEmail(email)
	for _, u := range st.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) UpdateProfile(ctx context.Context, id int64, upd repository.ProfileUpdate) (*models.User, error) {
	st, done := s.view()
	defer done()

	u, ok := st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Phone != nil {
		u.Phone = upd.Phone
	}
	if upd.Gender != nil {
		u.Gender = upd.Gender
	}
	if upd.BirthDate != nil {
		u.BirthDate = upd.BirthDate
	}
	u.UpdatedAt = time.Now()
	st.users[id] = u
	return &u, nil
}

func (s *Store) SetPassword(ctx context.Context, id int64, hash string) error {
	return s.mutateUser(id, func(u *models.User) { u.PasswordHash = &hash })
}

func (s *Store) MarkVerified(ctx context.Context, id int64, at time.Time) error {
	return s.mutateUser(id, func(u *models.User) { u.EmailVerifiedAt = &at })
}

func (s *Store) SetRole(ctx context.Context, id int64, role models.Role) error {
	return s.mutateUser(id, func(u *models.User) { u.Role = role })
}

func (s *Store) mutateUser(id int64, fn func(u *models.User)) error {
	st, done := s.view()
	defer done()

	u, ok := st.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&u)
	u.UpdatedAt = time.Now()
	st.users[id] = u
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	st, done := s.view()
	defer done()

	users := make([]models.User, 0, len(st.users))
	for _, u := range st.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *Store) SearchUsers(ctx context.Context, query string, excludeID int64, limit int) ([]models.UserSummary, error) {
	st, done := s.view()
	defer done()

	q := strings.ToLower(query)
	users := []models.UserSummary{}
	for _, u := range st.users {
		if u.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(u.Email, q) {
			users = append(users, models.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email})
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name == users[j].Name {
			return users[i].ID < users[j].ID
		}
		return users[i].Name < users[j].Name
	})
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *Store) MissingUsers(ctx context.Context, ids []int64) ([]int64, error) {
	st, done := s.view()
	defer done()

	seen := map[int64]bool{}
	var missing []int64
	for _, id := range ids {
		if _, ok := st.users[id]; ok || seen[id] {
			continue
		}
		seen[id] = true
		missing = append(missing, id)
	}
	return missing, nil
}

// Projects

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	st, done := s.view()
	defer done()

	if _, ok := st.users[p.CreatorID]; !ok {
		return repository.ErrInvalidReference
	}
	now := time.Now()
	p.ID = st.next()
	p.CreatedAt, p.UpdatedAt = now, now
	st.projects[p.ID] = *p
	return nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	st, done := s.view()
	defer done()

	p, ok := st.projects[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpdateProject(ctx context.Context, p *models.Project) error {
	st, done := s.view()
	defer done()

	existing, ok := st.projects[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	existing.Name = p.Name
	existing.Description = p.Description
	existing.StartDate = p.StartDate
	existing.Deadline = p.Deadline
	existing.UpdatedAt = time.Now()
	st.projects[p.ID] = existing
	p.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	st, done := s.view()
	defer done()

	if _, ok := st.projects[id]; !ok {
		return repository.ErrNotFound
	}
	delete(st.projects, id)
	for mid, m := range st.members {
		if m.ProjectID == id {
			delete(st.members, mid)
		}
	}
	for tid, t := range st.tasks {
		if t.ProjectID == id {
			delete(st.tasks, tid)
		}
	}
	return nil
}

func (s *Store) ListProjectsForUser(ctx context.Context, userID int64) ([]models.Project, error) {
	st, done := s.view()
	defer done()

	projects := []models.Project{}
	for _, m := range st.members {
		if m.UserID == userID {
			if p, ok := st.projects[m.ProjectID]; ok {
				projects = append(projects, p)
			}
		}
	}
	sort.Slice(projects, func(i, j int) bool {
		if projects[i].Deadline.Equal(projects[j].Deadline) {
			return projects[i].ID < projects[j].ID
		}
		return projects[i].Deadline.Before(projects[j].Deadline)
	})
	return projects, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	st, done := s.view()
	defer done()

	projects := make([]models.Project, 0, len(st.projects))
	for _, p := range st.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

func (s *Store) AddMember(ctx context.Context, m *models.ProjectMember) (bool, error) {
	st, done := s.view()
	defer done()

	if _, ok := st.projects[m.ProjectID]; !ok {
		return false, repository.ErrInvalidReference
	}
	if _, ok := st.users[m.UserID]; !ok {
		return false, repository.ErrInvalidReference
	}
	for _, existing := range st.members {
		if existing.ProjectID == m.ProjectID && existing.UserID == m.UserID {
			return false, nil
		}
	}
	m.ID = st.next()
	m.JoinedAt = time.Now()
	st.members[m.ID] = *m
	return true, nil
}

func (s *Store) GetMember(ctx context.Context, projectID, userID int64) (*models.ProjectMember, error) {
	st, done := s.view()
	defer done()

	for _, m := range st.members {
		if m.ProjectID == projectID && m.UserID == userID {
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListMembers(ctx context.Context, projectID int64) ([]models.ProjectMember, error) {
	st, done := s.view()
	defer done()

	members := []models.ProjectMember{}
	for _, m := range st.members {
		if m.ProjectID != projectID {
			continue
		}
		if u, ok := st.users[m.UserID]; ok {
			m.UserName, m.UserEmail = u.Name, u.Email
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Role != members[j].Role {
			return members[i].Role < members[j].Role
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

// Tasks

func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	st, done := s.view()
	defer done()

	if _, ok := st.projects[t.ProjectID]; !ok {
		return repository.ErrInvalidReference
	}
	if _, ok := st.users[t.AssigneeID]; !ok {
		return repository.ErrInvalidReference
	}
	now := time.Now()
	t.ID = st.next()
	t.CreatedAt, t.UpdatedAt = now, now
	st.tasks[t.ID] = *t
	return nil
}

func (s *Store) GetTask(ctx context.Context, id int64) (*models.Task, error) {
	st, done := s.view()
	defer done()

	t, ok := st.tasks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *models.Task) error {
	st, done := s.view()
	defer done()

	existing, ok := st.tasks[t.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if _, ok := st.users[t.AssigneeID]; !ok {
		return repository.ErrInvalidReference
	}
	existing.Title = t.Title
	existing.Description = t.Description
	existing.Deadline = t.Deadline
	existing.AssigneeID = t.AssigneeID
	existing.Status = t.Status
	existing.UpdatedAt = time.Now()
	st.tasks[t.ID] = existing
	t.UpdatedAt = existing.UpdatedAt
	return nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id int64, status models.TaskStatus) error {
	st, done := s.view()
	defer done()

	t, ok := st.tasks[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	st.tasks[id] = t
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	st, done := s.view()
	defer done()

	if _, ok := st.tasks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(st.tasks, id)
	return nil
}

func (s *Store) ListTasksByProject(ctx context.Context, projectID int64) ([]models.Task, error) {
	return s.filterTasks(func(t models.Task) bool { return t.ProjectID == projectID }), nil
}

func (s *Store) ListTasksByProjects(ctx context.Context, projectIDs []int64) ([]models.Task, error) {
	want := make(map[int64]bool, len(projectIDs))
	for _, id := range projectIDs {
		want[id] = true
	}
	return s.filterTasks(func(t models.Task) bool { return want[t.ProjectID] }), nil
}

func (s *Store) ListTasksByAssignee(ctx context.Context, userID int64) ([]models.Task, error) {
	return s.filterTasks(func(t models.Task) bool { return t.AssigneeID == userID }), nil
}

func (s *Store) filterTasks(keep func(models.Task) bool) []models.Task {
	st, done := s.view()
	defer done()

	tasks := []models.Task{}
	for _, t := range st.tasks {
		if keep(t) {
			tasks = append(tasks, t)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Deadline.Equal(tasks[j].Deadline) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].Deadline.Before(tasks[j].Deadline)
	})
	return tasks
}

// Friendships

func (s *Store) CreateFriendship(ctx context.Context, f *models.Friendship) error {
	st, done := s.view()
	defer done()

	if f.RequesterID == f.AddresseeID {
		return repository.ErrInvalidReference
	}
	if _, ok := st.users[f.RequesterID]; !ok {
		return repository.ErrInvalidReference
	}
	if _, ok := st.users[f.AddresseeID]; !ok {
		return repository.ErrInvalidReference
	}
	for _, existing := range st.friendships {
		if existing.Involves(f.RequesterID) && existing.Involves(f.AddresseeID) {
			return repository.ErrConflict
		}
	}
	f.ID = st.next()
	f.CreatedAt = time.Now()
	st.friendships[f.ID] = *f
	return nil
}

func (s *Store) GetFriendship(ctx context.Context, id int64) (*models.Friendship, error) {
	st, done := s.view()
	defer done()

	f, ok := st.friendships[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (s *Store) FindFriendship(ctx context.Context, a, b int64) (*models.Friendship, error) {
	st, done := s.view()
	defer done()

	for _, f := range st.friendships {
		if f.Involves(a) && f.Involves(b) {
			return &f, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) AcceptFriendship(ctx context.Context, id int64, at time.Time) error {
	st, done := s.view()
	defer done()

	f, ok := st.friendships[id]
	if !ok || f.Status != models.FriendshipPending {
		return repository.ErrNotFound
	}
	f.Status = models.FriendshipAccepted
	f.AcceptedAt = &at
	st.friendships[id] = f
	return nil
}

func (s *Store) DeleteFriendship(ctx context.Context, id int64) error {
	st, done := s.view()
	defer done()

	if _, ok := st.friendships[id]; !ok {
		return repository.ErrNotFound
	}
	delete(st.friendships, id)
	return nil
}

func (s *Store) ListFriendships(ctx context.Context, userID int64) ([]models.Friendship, error) {
	st, done := s.view()
	defer done()

	friendships := []models.Friendship{}
	for _, f := range st.friendships {
		if f.Involves(userID) {
			friendships = append(friendships, f)
		}
	}
	sort.Slice(friendships, func(i, j int) bool { return friendships[i].ID > friendships[j].ID })
	return friendships, nil
}
