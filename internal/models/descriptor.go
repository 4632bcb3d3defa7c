package models

// Descriptor describes one discovered image while it travels from the
// parser to a downloader. It only lives for one pipeline run.
type Descriptor struct {
	URL    string
	SubDir string
	Name   string

	// Declared metadata, zero when unknown.
	Width  int
	Height int
	Bytes  int64

	Index      int
	ResetIndex bool

	Abort        bool
	AbortMessage string

	// Dir is the task directory, filled in by the pipeline.
	Dir     string
	Referer string
}

// AbortDescriptor builds the marker a strategy yields to decline a page.
func AbortDescriptor(msg string) *Descriptor {
	return &Descriptor{Abort: true, AbortMessage: msg}
}

// Outcome is what a downloader reports for one descriptor.
type Outcome struct {
	Status Status `json:"status"`
	URL    string `json:"url"`
	Name   string `json:"name,omitempty"`
	Path   string `json:"path,omitempty"`
	Type   string `json:"type,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
	Reason string `json:"reason,omitempty"`
}
