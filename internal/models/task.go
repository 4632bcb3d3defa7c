package models

import "fmt"

// Status is shared by tasks (history rows) and items (url rows).
type Status int

const (
	StatusNotDownloaded Status = iota
	StatusDownloaded
	StatusFiltered
	StatusError
	StatusRetry
)

func (s Status) String() string {
	switch s {
	case StatusNotDownloaded:
		return "not_downloaded"
	case StatusDownloaded:
		return "downloaded"
	case StatusFiltered:
		return "filtered"
	case StatusError:
		return "error"
	case StatusRetry:
		return "retry"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Task is one user-submitted crawl, stored in the history table.
type Task struct {
	ID            int64    `json:"id"`
	URL           string   `json:"url"`
	Name          string   `json:"name"`
	Status        Status   `json:"status"`
	Date          string   `json:"date"`
	Domain        string   `json:"domain"`
	Dir           string   `json:"dir"`
	TotalCount    int      `json:"total_count"`
	DownloadCount int      `json:"download_count"`
	IsFolder      bool     `json:"is_folder"`
	IsVisible     bool     `json:"is_visible"`
	Cover         string   `json:"cover,omitempty"`
	Tags          []string `json:"tags"`
}

// Item is the persisted record of one image URL discovered for a task.
type Item struct {
	TaskID int64  `json:"task_id"`
	URL    string `json:"url"`
	Status Status `json:"status"`
	Name   string `json:"name"`
	SubDir string `json:"sub_dir"`
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int64  `json:"bytes"`
}

// Tag is a user label attached to tasks.
type Tag struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	TaskCount int    `json:"task_count"`
}
