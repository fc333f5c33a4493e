package model

const (
	PostKindFeedback  = "feedback"
	PostKindChangelog = "changelog"
)

const (
	PostStatusOpen        = "open"
	PostStatusUnderReview = "under_review"
	PostStatusPlanned     = "planned"
	PostStatusInProgress  = "in_progress"
	PostStatusCompleted   = "completed"
	PostStatusClosed      = "closed"
)

type Attachment struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	MediaType string `json:"media_type"`
}

// PostMetadata is persisted as jsonb. ImportSource/ImportSourceID remember where an
// imported post came from so later runs can find it again.
type PostMetadata struct {
	ImportSource   string `json:"import_source,omitempty"`
	ImportSourceID string `json:"import_source_id,omitempty"`
	SourceURL      string `json:"source_url,omitempty"`
	SourceSlug     string `json:"source_slug,omitempty"`
	ImportRunID    string `json:"import_run_id,omitempty"`
}

type Post struct {
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspace_id"`
	BoardID     string       `json:"board_id"`
	Kind        string       `json:"kind"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	ContentHTML string       `json:"content_html"`
	Status      string       `json:"status"`
	Score       int          `json:"score"`
	AuthorID    string       `json:"author_id"`
	ImageURL    string       `json:"image_url"`
	Attachments []Attachment `json:"attachments"`
	Metadata    PostMetadata `json:"metadata"`
	Published   bool         `json:"published"`
	Ctime       int64        `json:"ctime"`
	Mtime       int64        `json:"mtime"`
}
