package model

const (
	ImportSourceCSV   = "csv"
	ImportSourceNotra = "notra"
)

const (
	ImportRunRunning = "running"
	ImportRunDone    = "done"
	ImportRunFailed  = "failed"
)

// ImportIssue is one reported problem; Row is nil for issues not tied to a file row.
type ImportIssue struct {
	Row     *int   `json:"row"`
	Message string `json:"message"`
}

type FileImportSummary struct {
	OK            bool          `json:"ok"`
	ImportedCount int           `json:"importedCount"`
	CreatedCount  int           `json:"createdCount"`
	UpdatedCount  int           `json:"updatedCount"`
	SkippedCount  int           `json:"skippedCount"`
	ErrorCount    int           `json:"errorCount"`
	Errors        []ImportIssue `json:"errors"`
	Warnings      []ImportIssue `json:"warnings"`
	RowLimit      int           `json:"rowLimit"`
	LimitReached  bool          `json:"limitReached"`
}

type RemoteImportSummary struct {
	FetchedCount         int           `json:"fetchedCount"`
	ImportedCount        int           `json:"importedCount"`
	CreatedCount         int           `json:"createdCount"`
	UpdatedCount         int           `json:"updatedCount"`
	SkippedCount         int           `json:"skippedCount"`
	TruncatedCount       int           `json:"truncatedCount"`
	LimitReached         bool          `json:"limitReached"`
	UsedStoredConnection bool          `json:"usedStoredConnection"`
	PagesFetched         int           `json:"pagesFetched"`
	Errors               []ImportIssue `json:"errors,omitempty"`
	Warnings             []ImportIssue `json:"warnings,omitempty"`
	Partial              bool          `json:"partial,omitempty"`
	FailureMessage       string        `json:"failureMessage,omitempty"`
}

type ImportRun struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	ActorID     string `json:"actor_id"`
	Source      string `json:"source"`
	Mode        string `json:"mode"`
	Status      string `json:"status"`
	FileKey     string `json:"file_key"`
	SummaryJSON string `json:"summary"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}
