package models

// ProgressUpdate is broadcast to websocket clients while tasks run.
type ProgressUpdate struct {
	TaskID        int64    `json:"task_id"`
	Event         string   `json:"event"`
	State         string   `json:"state,omitempty"`
	Name          string   `json:"name,omitempty"`
	Dir           string   `json:"dir,omitempty"`
	TotalCount    int      `json:"total_count"`
	DownloadCount int      `json:"download_count"`
	ActiveWorkers int      `json:"active_workers"`
	Item          *Outcome `json:"item,omitempty"`
	Message       string   `json:"message,omitempty"`
}
