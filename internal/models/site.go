// Package models defines the domain types for twhost.
package models

import "time"

// Site is a hosted TiddlyWiki file and what is known about it.
type Site struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Title        string    `json:"title"`
	Dialect      string    `json:"dialect"`
	Version      string    `json:"version"`
	Encrypted    bool      `json:"encrypted"`
	TiddlerCount int       `json:"tiddler_count"`
	Size         int64     `json:"size"`
	Checksum     string    `json:"checksum"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BlobMetadata is a lightweight representation returned by storage listings.
type BlobMetadata struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
