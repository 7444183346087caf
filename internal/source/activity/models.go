package activity

// APIResponse represents one page of a user's activity feed.
type APIResponse struct {
	PageInfo PageInfo `json:"pageInfo"`
	Entries  []Entry  `json:"entries"`
}

type PageInfo struct {
	Page       int `json:"page"`
	NumPages   int `json:"numPages"`
	PageSize   int `json:"pageSize"`
	NumEntries int `json:"numEntries"`
}

type Entry struct {
	ID           string  `json:"id"`
	Film         Film    `json:"film"`
	Rating       float64 `json:"rating"`
	Rewatch      bool    `json:"rewatch"`
	WatchedDate  *string `json:"watchedDate"`
	Published    string  `json:"published"`
	LastModified int64   `json:"lastModified"`
}

type Film struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Year  *int   `json:"year"`
	Slug  string `json:"slug"`
}
