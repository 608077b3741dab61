package models

// CreateWatchRequest opens a refreshing pattern view.
type CreateWatchRequest struct {
	RunRef   string `json:"runRef"`
	Mode     string `json:"mode"`
	FromStop int    `json:"fromStop,omitempty"`
	Hidden   bool   `json:"hidden,omitempty"`
}

// VisibilityRequest records whether the pattern screen is on screen.
type VisibilityRequest struct {
	Visible *bool `json:"visible"`
}

// WatchStats counts refresh outcomes of a watch.
type WatchStats struct {
	Fetches           int64      `json:"fetches"`
	Failures          int64      `json:"failures"`
	TransportFailures int64      `json:"transportFailures"`
	DecodeFailures    int64      `json:"decodeFailures"`
	LastError         string     `json:"lastError,omitempty"`
	LastFailureAt     *Timestamp `json:"lastFailureAt,omitempty"`
	UpdatedAt         *Timestamp `json:"updatedAt,omitempty"`
}

// Watch is the state of a watch session. Pattern is absent until the first
// load succeeds.
type Watch struct {
	ID        string           `json:"id"`
	RunRef    string           `json:"runRef"`
	Mode      string           `json:"mode"`
	FromStop  int              `json:"fromStop,omitempty"`
	State     string           `json:"state"`
	Visible   bool             `json:"visible"`
	CreatedAt Timestamp        `json:"createdAt"`
	Stats     WatchStats       `json:"stats"`
	Pattern   *PatternResponse `json:"pattern,omitempty"`
}
