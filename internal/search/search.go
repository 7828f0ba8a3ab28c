package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultIdea    ResultType = "idea"
	ResultVideo   ResultType = "video"
	ResultChannel ResultType = "channel"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	Status    string     `json:"status,omitempty"`
	ChannelID string     `json:"channelId,omitempty"`
}

// Query describes a search request. UserID scopes idea hits to their
// owner; analytics rows (videos, channels) are shared.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	UserID     string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// IdeaRecord is the data we index for a script idea.
type IdeaRecord struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Notes       string `json:"notes"`
	Status      string `json:"status"`
	Account     string `json:"account"`
}

// VideoRecord is the data we index for a scraped video.
type VideoRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ChannelID   string `json:"channelId"`
}

// ChannelRecord is the data we index for a scraped channel.
type ChannelRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
