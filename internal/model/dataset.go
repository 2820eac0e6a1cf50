// Package model defines the data structures shared by the service, storage
// and HTTP layers.
package model

import "time"

// Folder groups uploaded datasets.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	FileCount int       `json:"fileCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// File is one uploaded dataset. Content is only loaded when it is asked for
// explicitly and never serialized with the metadata.
type File struct {
	ID          string    `json:"id"`
	FolderID    string    `json:"folderId"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Checksum    string    `json:"checksum"`
	CreatedAt   time.Time `json:"createdAt"`
	Content     string    `json:"-"`
}

// Preview is a cheap look at a CSV dataset: its header and a few rows.
type Preview struct {
	Columns []string   `json:"columns"`
	Samples [][]string `json:"samples"`
}
