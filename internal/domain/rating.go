package domain

import "time"

type User struct {
	ID           string     `db:"id"`
	Username     string     `db:"username"`
	LastSyncedAt *time.Time `db:"last_synced_at"`
}

type Movie struct {
	ID    int64  `db:"id" json:"id"`
	Title string `db:"title" json:"title"`
	Year  *int   `db:"year" json:"year,omitempty"`
	Slug  string `db:"slug" json:"slug"`
}

// Rating is one diary/rating entry pulled from a user's activity feed.
type Rating struct {
	ID           int64      `json:"id"`
	UserID       string     `json:"userId"`
	ExternalID   string     `json:"externalId"`
	Movie        Movie      `json:"movie"`
	Stars        float64    `json:"stars"`
	Rewatch      bool       `json:"rewatch"`
	WatchedAt    *time.Time `json:"watchedAt,omitempty"`
	PublishedAt  time.Time  `json:"publishedAt"`
	LastModified time.Time  `json:"lastModified"`
}

// SubjectCursor tracks how far a user's activity has been synced.
type SubjectCursor struct {
	ID           int64     `db:"id"`
	SubjectID    string    `db:"subject_id"`
	LastSyncedAt time.Time `db:"last_synced_at"`
	LastEntryID  string    `db:"last_entry_id"`
	TotalSynced  int64     `db:"total_synced"`
}
