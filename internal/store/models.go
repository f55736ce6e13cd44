package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

func (u User) DisplayName() string {
	return u.FirstName + " " + u.LastName
}

type Group struct {
	ID   int64
	Name string
}

type Sheet struct {
	ID     int64
	Title  string
	Owner  int64
	Status int
	// Group is the partner group name; only meaningful for partner sheets.
	Group string
	// URL is the topic slug for topic sheets.
	URL          string
	Sources      []json.RawMessage
	DateCreated  time.Time
	DateModified time.Time
}

type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
}
