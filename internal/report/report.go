// Package report derives dashboard figures from projects and tasks. Nothing
// here is stored; every value is recomputed from the rows on each request.
package report

import (
	"math"
	"sort"
	"time"

	"tasksync/internal/models"
)

type Status string

const (
	StatusActive  Status = "aktif"
	StatusDone    Status = "selesai"
	StatusOverdue Status = "tertunda"
)

const (
	UpcomingWindow = 3 * 24 * time.Hour
	UpcomingLimit  = 3
)

// Progress is the rounded percentage of tasks marked SELESAI, 0 for no tasks.
// Only a project whose every task is done reaches 100.
func Progress(tasks []models.Task) int {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.Status == models.TaskDone {
			done++
		}
	}
	pct := int(math.Round(100 * float64(done) / float64(len(tasks))))
	// 199 of 200 must not read as finished
	if pct == 100 && done < len(tasks) {
		pct = 99
	}
	return pct
}

// ProjectStatus derives the project state. A fully completed project is
// selesai even when its deadline has passed.
func ProjectStatus(progress int, deadline, now time.Time) Status {
	switch {
	case progress >= 100:
		return StatusDone
	case now.After(deadline):
		return StatusOverdue
	default:
		return StatusActive
	}
}

// UpcomingTasks returns the caller's unfinished tasks due within the
// upcoming window (overdue ones included), soonest first.
func UpcomingTasks(tasks []models.Task, userID int64, now time.Time) []models.Task {
	limit := now.Add(UpcomingWindow)
	upcoming := []models.Task{}
	for _, t := range tasks {
		if t.AssigneeID != userID || t.Status == models.TaskDone {
			continue
		}
		if t.Deadline.After(limit) {
			continue
		}
		upcoming = append(upcoming, t)
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].Deadline.Before(upcoming[j].Deadline)
	})
	if len(upcoming) > UpcomingLimit {
		upcoming = upcoming[:UpcomingLimit]
	}
	return upcoming
}

// GroupByProject buckets tasks by project id.
func GroupByProject(tasks []models.Task) map[int64][]models.Task {
	grouped := make(map[int64][]models.Task)
	for _, t := range tasks {
		grouped[t.ProjectID] = append(grouped[t.ProjectID], t)
	}
	return grouped
}

type ProjectSummary struct {
	models.Project
	Role           models.MemberRole `json:"role,omitempty"`
	TotalTasks     int               `json:"total_tasks"`
	CompletedTasks int               `json:"completed_tasks"`
	Progress       int               `json:"progress"`
	Status         Status            `json:"status"`
}

func Summarize(p models.Project, tasks []models.Task, now time.Time) ProjectSummary {
	completed := 0
	for _, t := range tasks {
		if t.Status == models.TaskDone {
			completed++
		}
	}
	progress := Progress(tasks)
	return ProjectSummary{
		Project:        p,
		TotalTasks:     len(tasks),
		CompletedTasks: completed,
		Progress:       progress,
		Status:         ProjectStatus(progress, p.Deadline, now),
	}
}

// StatusCounts tallies summaries by derived status.
type StatusCounts struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Overdue   int `json:"overdue"`
}

func CountStatuses(summaries []ProjectSummary) StatusCounts {
	var c StatusCounts
	for _, s := range summaries {
		switch s.Status {
		case StatusDone:
			c.Completed++
		case StatusOverdue:
			c.Overdue++
		default:
			c.Active++
		}
	}
	return c
}

type UserDashboard struct {
	TotalProjects          int              `json:"totalProjects"`
	ActiveProjectsCount    int              `json:"activeProjectsCount"`
	CompletedProjectsCount int              `json:"completedProjectsCount"`
	OverdueProjectsCount   int              `json:"overdueProjectsCount"`
	AssignedTasks          int              `json:"assignedTasks"`
	CompletedTasks         int              `json:"completedTasks"`
	UpcomingTasks          []models.Task    `json:"upcomingTasks"`
	Projects               []ProjectSummary `json:"projects"`
}

// BuildUserDashboard reduces the caller's projects and every task of those
// projects. roles maps project id to the caller's membership role.
func BuildUserDashboard(userID int64, projects []models.Project, tasks []models.Task, roles map[int64]models.MemberRole, now time.Time) UserDashboard {
	byProject := GroupByProject(tasks)
	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		s := Summarize(p, byProject[p.ID], now)
		s.Role = roles[p.ID]
		summaries = append(summaries, s)
	}
	counts := CountStatuses(summaries)

	d := UserDashboard{
		TotalProjects:          len(projects),
		ActiveProjectsCount:    counts.Active,
		CompletedProjectsCount: counts.Completed,
		OverdueProjectsCount:   counts.Overdue,
		UpcomingTasks:          UpcomingTasks(tasks, userID, now),
		Projects:               summaries,
	}
	for _, t := range tasks {
		if t.AssigneeID != userID {
			continue
		}
		d.AssignedTasks++
		if t.Status == models.TaskDone {
			d.CompletedTasks++
		}
	}
	return d
}

type AdminDashboard struct {
	TotalUsers     int          `json:"totalUsers"`
	TotalAdmins    int          `json:"totalAdmins"`
	VerifiedUsers  int          `json:"verifiedUsers"`
	TotalProjects  int          `json:"totalProjects"`
	Projects       StatusCounts `json:"projects"`
	TotalTasks     int          `json:"totalTasks"`
	CompletedTasks int          `json:"completedTasks"`
	Progress       int          `json:"progress"`
}

func BuildAdminDashboard(users []models.User, projects []models.Project, tasks []models.Task, now time.Time) AdminDashboard {
	d := AdminDashboard{
		TotalUsers:    len(users),
		TotalProjects: len(projects),
		TotalTasks:    len(tasks),
		Progress:      Progress(tasks),
	}
	for _, u := range users {
		if u.Role == models.RoleAdmin {
			d.TotalAdmins++
		}
		if u.Verified() {
			d.VerifiedUsers++
		}
	}
	for _, t := range tasks {
		if t.Status == models.TaskDone {
			d.CompletedTasks++
		}
	}
	byProject := GroupByProject(tasks)
	summaries := make([]ProjectSummary, 0, len(projects))
	for _, p := range projects {
		summaries = append(summaries, Summarize(p, byProject[p.ID], now))
	}
	d.Projects = CountStatuses(summaries)
	return d
}
