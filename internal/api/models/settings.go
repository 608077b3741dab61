package models

import "encoding/json"

// Setting is one preference value. Default is true when the device has not
// set the key.
type Setting struct {
	Key       string     `json:"key"`
	Value     any        `json:"value"`
	Default   bool       `json:"default"`
	UpdatedAt *Timestamp `json:"updatedAt,omitempty"`
}

// SettingsResponse lists a device's preferences.
type SettingsResponse struct {
	Settings []Setting `json:"settings"`
}

// PutSettingRequest sets a preference value.
type PutSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// SettingChange is streamed to subscribers after a write.
type SettingChange struct {
	Kind  string    `json:"kind"`
	Key   string    `json:"key"`
	Value any       `json:"value,omitempty"`
	At    Timestamp `json:"at"`
}

// RecentItem is one entry of a recents list.
type RecentItem struct {
	Key      string    `json:"key"`
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle,omitempty"`
	Ref      string    `json:"ref,omitempty"`
	AddedAt  Timestamp `json:"addedAt"`
}

// PushRecentRequest adds an item to the front of a recents list.
type PushRecentRequest struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Ref      string `json:"ref,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
}

// RecentsResponse is a recents list, most recent first.
type RecentsResponse struct {
	List  string       `json:"list"`
	Items []RecentItem `json:"items"`
}
