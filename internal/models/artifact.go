// Package models defines the domain types shared by livetext packages.
package models

import "time"

// ArtifactMetadata describes one generated file found in the inbox.
type ArtifactMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
