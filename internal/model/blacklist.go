package model

import "time"

// BlacklistEntry is one identifier from the published 69-B list.
type BlacklistEntry struct {
	RFC       string    `json:"rfc"`
	LastSeen  time.Time `json:"last_seen"`
	SourceURL string    `json:"source_url"`
}

// ImportMode describes how an import affected the stored set. Imports always
// replace the previous set.
const ImportModeReplace = "replace"

// ImportRecord is the audit entry written after every blacklist import.
type ImportRecord struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	SourceURL  string    `json:"source_url"`
	TotalCount int       `json:"total_count"`
	Mode       string    `json:"mode"`
	Version    int64     `json:"version"`
}
