package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"tasksync/internal/models"
	"tasksync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUser(t *testing.T, s *Store, name string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@example.com", Provider: models.ProviderCredentials, Role: models.RoleUser}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestCreateUserUniqueEmail(t *testing.T) {
	s := New()
	newUser(t, s, "ani")

	err := s.CreateUser(context.Background(), &models.User{Name: "Ani 2", Email: " ANI@example.com"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	u, err := s.GetUserByEmail(context.Background(), "Ani@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "ani", u.Name)
}

func TestWithTxRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx repository.Store) error {
		p := &models.Project{Name: "ghost", Deadline: time.Now(), CreatorID: owner.ID}
		if err := tx.CreateProject(ctx, p); err != nil {
			return err
		}
		if _, err := tx.AddMember(ctx, &models.ProjectMember{ProjectID: p.ID, UserID: owner.ID, Role: models.MemberManager}); err != nil {
			return err
		}
		// visible inside the transaction
		got, err := tx.ListProjectsForUser(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	assert.Empty(t, projects)
}

func TestWithTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := newUser(t, s, "owner")

	var id int64
	err := s.WithTx(ctx, func(tx repository.Store) error {
		p := &models.Project{Name: "kept", Deadline: time.Now(), CreatorID: owner.ID}
		if err := tx.CreateProject(ctx, p); err != nil {
			return err
		}
		id = p.ID
		// nested calls join the outer transaction
		return tx.WithTx(ctx, func(inner repository.Store) error {
			_, err := inner.AddMember(ctx, &models.ProjectMember{ProjectID: id, UserID: owner.ID, Role: models.MemberManager})
			return err
		})
	})
	require.NoError(t, err)

	_, err = s.GetMember(ctx, id, owner.ID)
	assert.NoError(t, err)
}

func TestDeleteProjectCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := newUser(t, s, "owner")
	member := newUser(t, s, "member")

	p := &models.Project{Name: "p", Deadline: time.Now(), CreatorID: owner.ID}
	require.NoError(t, s.CreateProject(ctx, p))
	added, err := s.AddMember(ctx, &models.ProjectMember{ProjectID: p.ID, UserID: member.ID, Role: models.MemberMember})
	require.NoError(t, err)
	assert.True(t, added)
	added, err = s.AddMember(ctx, &models.ProjectMember{ProjectID: p.ID, UserID: member.ID, Role: models.MemberManager})
	require.NoError(t, err)
	assert.False(t, added, "second membership is ignored")

	task := &models.Task{ProjectID: p.ID, AssigneeID: member.ID, Title: "t", Deadline: time.Now(), Status: models.TaskPending}
	require.NoError(t, s.CreateTask(ctx, task))

	require.NoError(t, s.DeleteProject(ctx, p.ID))
	_, err = s.GetTask(ctx, task.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.GetMember(ctx, p.ID, member.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, s.DeleteProject(ctx, p.ID), repository.ErrNotFound)
}

func TestForeignKeys(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner := newUser(t, s, "owner")

	assert.ErrorIs(t, s.CreateProject(ctx, &models.Project{Name: "p", CreatorID: 99}), repository.ErrInvalidReference)

	p := &models.Project{Name: "p", Deadline: time.Now(), CreatorID: owner.ID}
	require.NoError(t, s.CreateProject(ctx, p))
	err := s.CreateTask(ctx, &models.Task{ProjectID: p.ID, AssigneeID: 99, Title: "t"})
	assert.ErrorIs(t, err, repository.ErrInvalidReference)

	missing, err := s.MissingUsers(ctx, []int64{owner.ID, 99, 98, 99})
	require.NoError(t, err)
	assert.Equal(t, []int64{99, 98}, missing)
}

func TestFriendshipPair(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := newUser(t, s, "a")
	b := newUser(t, s, "b")

	f := &models.Friendship{RequesterID: a.ID, AddresseeID: b.ID, Status: models.FriendshipPending}
	require.NoError(t, s.CreateFriendship(ctx, f))
	err := s.CreateFriendship(ctx, &models.Friendship{RequesterID: b.ID, AddresseeID: a.ID, Status: models.FriendshipPending})
	assert.ErrorIs(t, err, repository.ErrConflict)
	err = s.CreateFriendship(ctx, &models.Friendship{RequesterID: a.ID, AddresseeID: a.ID})
	assert.ErrorIs(t, err, repository.ErrInvalidReference)

	found, err := s.FindFriendship(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, found.ID)

	now := time.Now()
	require.NoError(t, s.AcceptFriendship(ctx, f.ID, now))
	assert.ErrorIs(t, s.AcceptFriendship(ctx, f.ID, now), repository.ErrNotFound, "only pending rows can be accepted")

	got, err := s.GetFriendship(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FriendshipAccepted, got.Status)
}
