package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultBlock ResultType = "block"
	ResultList  ResultType = "list"
	ResultTag   ResultType = "tag"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      int64      `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	ListID  *int64     `json:"list_id,omitempty"`
}

// Query describes a search request. UserID scopes every backend; results
// never cross account boundaries.
type Query struct {
	Text       string
	UserID     int64
	FilterType ResultType // empty = all types
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

// Indexer can push entities into a search index.
type Indexer interface {
	IndexBlock(b BlockRecord) error
	IndexList(l ListRecord) error
	IndexTag(t TagRecord) error
	DeleteBlock(id int64) error
	DeleteList(id int64) error
	DeleteTag(id int64) error
}

// BlockRecord is the data we index for a content block.
type BlockRecord struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"userId"`
	HTML   string `json:"html"`
	Type   string `json:"blockType"`
	ListID *int64 `json:"listId,omitempty"`
}

// ListRecord is the data we index for a list.
type ListRecord struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"userId"`
	Title  string `json:"title"`
}

// TagRecord is the data we index for a tag.
type TagRecord struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"userId"`
	Name   string `json:"name"`
}
