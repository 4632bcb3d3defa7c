package store

import (
	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/sqlstore"
)

const itemSelect = `SELECT task_id, url, status, name, sub_dir, type, width, height, bytes FROM urls`

func scanItem(row sqlstore.Row) *models.Item {
	return &models.Item{
		TaskID: row.Int64(0),
		URL:    row.String(1),
		Status: models.Status(row.Int(2)),
		Name:   row.String(3),
		SubDir: row.String(4),
		Type:   row.String(5),
		Width:  row.Int(6),
		Height: row.Int(7),
		Bytes:  row.Int64(8),
	}
}

// ItemExists reports whether url has already been recorded for the task.
func (s *Store) ItemExists(taskID int64, url string) bool {
	_, ok := s.sql.SelectOne("SELECT 1 FROM urls WHERE task_id = ? AND url = ?", taskID, url)
	return ok
}

// RegisterItem records a newly discovered url for the task.
func (s *Store) RegisterItem(taskID int64, url, subDir string) {
	s.sql.Execute("INSERT OR IGNORE INTO urls (task_id, url, sub_dir) VALUES (?, ?, ?)", taskID, url, subDir)
}

// MarkItem stores a downloader outcome. Metadata is only written for
// successful downloads.
func (s *Store) MarkItem(taskID int64, o models.Outcome) {
	if o.Status == models.StatusDownloaded {
		s.sql.Execute(`UPDATE urls SET status = ?, name = ?, type = ?, width = ?, height = ?, bytes = ?
			WHERE task_id = ? AND url = ?`,
			o.Status, o.Name, o.Type, o.Width, o.Height, o.Bytes, taskID, o.URL)
		return
	}
	s.sql.Execute("UPDATE urls SET status = ? WHERE task_id = ? AND url = ?", o.Status, taskID, o.URL)
}

// ListItems returns every item of a task in discovery order.
func (s *Store) ListItems(taskID int64) []*models.Item {
	items := []*models.Item{}
	for row := range s.sql.Select(itemSelect+" WHERE task_id = ? ORDER BY rowid", taskID) {
		items = append(items, scanItem(row))
	}
	return items
}

// CountItems returns the number of items of a task per status.
func (s *Store) CountItems(taskID int64) map[models.Status]int {
	counts := make(map[models.Status]int)
	for row := range s.sql.Select("SELECT status, COUNT(*) FROM urls WHERE task_id = ? GROUP BY status", taskID) {
		counts[models.Status(row.Int(0))] = row.Int(1)
	}
	return counts
}

// FirstDownloadedItem returns the earliest successfully downloaded item.
func (s *Store) FirstDownloadedItem(taskID int64) (*models.Item, error) {
	row, ok := s.sql.SelectOne(itemSelect+" WHERE task_id = ? AND status = ? ORDER BY rowid LIMIT 1",
		taskID, models.StatusDownloaded)
	if !ok {
		return nil, ErrNotFound
	}
	return scanItem(row), nil
}
