package store

import (
	"fmt"
	"strings"

	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/sqlstore"
)

const taskSelect = `
	SELECT h.id, h.url, h.name, h.status, h.date, h.domain, h.dir,
		h.total_count, h.download_count, h.is_folder, h.is_show, h.cover,
		COALESCE(GROUP_CONCAT(t.tag, ','), '')
	FROM history h
	LEFT JOIN history_related_tag r ON r.history_id = h.id
	LEFT JOIN tags t ON t.id = r.tag_id
`

func scanTask(row sqlstore.Row) *models.Task {
	task := &models.Task{
		ID:            row.Int64(0),
		URL:           row.String(1),
		Name:          row.String(2),
		Status:        models.Status(row.Int(3)),
		Date:          row.String(4),
		Domain:        row.String(5),
		Dir:           row.String(6),
		TotalCount:    row.Int(7),
		DownloadCount: row.Int(8),
		IsFolder:      row.Bool(9),
		IsVisible:     row.Bool(10),
		Cover:         row.String(11),
		Tags:          []string{},
	}
	if tags := row.String(12); tags != "" {
		task.Tags = strings.Split(tags, ",")
	}
	return task
}

// CreateTask inserts a history row for url and returns it.
func (s *Store) CreateTask(url string) (*models.Task, error) {
	s.sql.Execute("INSERT INTO history (url) VALUES (?)", url)
	task, err := s.GetTaskByURL(url)
	if err != nil {
		return nil, fmt.Errorf("create task %s: %w", url, err)
	}
	return task, nil
}

// GetTask retrieves a single task by its ID.
func (s *Store) GetTask(id int64) (*models.Task, error) {
	row, ok := s.sql.SelectOne(taskSelect+" WHERE h.id = ? GROUP BY h.id", id)
	if !ok {
		return nil, ErrNotFound
	}
	return scanTask(row), nil
}

// GetTaskByURL retrieves a task by its root URL.
func (s *Store) GetTaskByURL(url string) (*models.Task, error) {
	row, ok := s.sql.SelectOne(taskSelect+" WHERE h.url = ? GROUP BY h.id", url)
	if !ok {
		return nil, ErrNotFound
	}
	return scanTask(row), nil
}

// ListTasks returns tasks newest first. Hidden tasks are only included
// when includeHidden is set.
func (s *Store) ListTasks(includeHidden bool) []*models.Task {
	query := taskSelect
	if !includeHidden {
		query += " WHERE h.is_show = 1"
	}
	query += " GROUP BY h.id ORDER BY h.id DESC"

	tasks := []*models.Task{}
	for row := range s.sql.Select(query) {
		tasks = append(tasks, scanTask(row))
	}
	return tasks
}

// ResetTask forgets every item of a task so it can be downloaded again.
func (s *Store) ResetTask(id int64) {
	s.sql.Execute("DELETE FROM urls WHERE task_id = ?", id)
	s.sql.Execute(`UPDATE history SET status = 0, total_count = 0, download_count = 0, is_show = 1
		WHERE id = ?`, id)
}

// HideTask marks a task as deleted. Rows are never removed.
func (s *Store) HideTask(id int64) {
	s.sql.Execute("UPDATE history SET is_show = 0 WHERE id = ?", id)
}

// ShowTask makes a hidden task visible again.
func (s *Store) ShowTask(id int64) {
	s.sql.Execute("UPDATE history SET is_show = 1 WHERE id = ?", id)
}

// SetTaskTotal records the parser's final item count.
func (s *Store) SetTaskTotal(id int64, total int) {
	s.sql.Execute("UPDATE history SET status = ?, total_count = ? WHERE id = ?",
		models.StatusDownloaded, total, id)
}

// SetTaskStatus overrides the task status.
func (s *Store) SetTaskStatus(id int64, status models.Status) {
	s.sql.Execute("UPDATE history SET status = ? WHERE id = ?", status, id)
}

// SetTaskName records the resolved display name, domain and directory.
func (s *Store) SetTaskName(id int64, name, domain, dir string) {
	s.sql.Execute("UPDATE history SET name = ?, domain = ?, dir = ? WHERE id = ?", name, domain, dir, id)
}

// SetTaskFolder marks whether the task produced a folder or a single file.
func (s *Store) SetTaskFolder(id int64, isFolder bool) {
	s.sql.Execute("UPDATE history SET is_folder = ? WHERE id = ?", isFolder, id)
}

// SetDownloadCount stores how many items have been reported so far.
func (s *Store) SetDownloadCount(id int64, n int) {
	s.sql.Execute("UPDATE history SET download_count = ? WHERE id = ?", n, id)
}

// SetTaskCover stores a thumbnail data URI for the task.
func (s *Store) SetTaskCover(id int64, cover string) {
	s.sql.Execute("UPDATE history SET cover = ? WHERE id = ?", cover, id)
}
