package store

// Record is the durable descriptor of one stored blob. The JSON field names
// are fixed: the on-disk snapshot artifact is a flat JSON array of these
// records and must stay readable across versions.
//
// A Record is immutable after creation except for the one-way transition of
// Deleted from false to true. IDs are never reused, including for deleted
// records.
type Record struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	OriginalName string `json:"originalname"`
	Deleted      bool   `json:"deleted"`
}
