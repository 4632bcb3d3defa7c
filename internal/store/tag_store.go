package store

import (
	"fmt"
	"strings"

	"github.com/archoctopus/archoctopus-go/internal/models"
)

// ListTags returns all tags along with the number of visible tasks using them.
func (s *Store) ListTags() []*models.Tag {
	query := `
		SELECT t.id, t.tag, COUNT(h.id)
		FROM tags t
		LEFT JOIN history_related_tag r ON r.tag_id = t.id
		LEFT JOIN history h ON h.id = r.history_id AND h.is_show = 1
		GROUP BY t.id
		ORDER BY t.tag ASC
	`
	tags := []*models.Tag{}
	for row := range s.sql.Select(query) {
		tags = append(tags, &models.Tag{ID: row.Int64(0), Name: row.String(1), TaskCount: row.Int(2)})
	}
	return tags
}

// GetTag retrieves a tag by name.
func (s *Store) GetTag(name string) (*models.Tag, error) {
	row, ok := s.sql.SelectOne("SELECT id, tag FROM tags WHERE tag = ?", strings.TrimSpace(name))
	if !ok {
		return nil, ErrNotFound
	}
	return &models.Tag{ID: row.Int64(0), Name: row.String(1)}, nil
}

// AddTagToTask creates the tag if needed and attaches it to the task.
func (s *Store) AddTagToTask(taskID int64, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tag name cannot be empty")
	}
	s.sql.Execute("INSERT OR IGNORE INTO tags (tag) VALUES (?)", name)
	s.sql.Execute(`INSERT OR IGNORE INTO history_related_tag (history_id, tag_id)
		SELECT ?, id FROM tags WHERE tag = ?`, taskID, name)
	return s.GetTag(name)
}

// RemoveTagFromTask detaches a tag from a task. The tag itself is kept.
func (s *Store) RemoveTagFromTask(taskID int64, name string) {
	s.sql.Execute(`DELETE FROM history_related_tag
		WHERE history_id = ? AND tag_id = (SELECT id FROM tags WHERE tag = ?)`, taskID, strings.TrimSpace(name))
}

// TaskTags lists the tag names attached to a task.
func (s *Store) TaskTags(taskID int64) []string {
	names := []string{}
	for row := range s.sql.Select(`SELECT t.tag FROM tags t
		JOIN history_related_tag r ON r.tag_id = t.id
		WHERE r.history_id = ? ORDER BY t.tag`, taskID) {
		names = append(names, row.String(0))
	}
	return names
}

// SetTaskTags makes the task's tags exactly names, adding and removing the
// difference.
func (s *Store) SetTaskTags(taskID int64, names []string) ([]string, error) {
	want := make(map[string]bool)
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			want[n] = true
		}
	}

	current := s.TaskTags(taskID)
	have := make(map[string]bool, len(current))
	for _, n := range current {
		have[n] = true
		if !want[n] {
			s.RemoveTagFromTask(taskID, n)
		}
	}
	for n := range want {
		if have[n] {
			continue
		}
		if _, err := s.AddTagToTask(taskID, n); err != nil {
			return nil, err
		}
	}
	return s.TaskTags(taskID), nil
}

// DeleteTag removes a tag and all of its task associations.
func (s *Store) DeleteTag(tagID int64) {
	s.sql.Execute("DELETE FROM tags WHERE id = ?", tagID)
}
