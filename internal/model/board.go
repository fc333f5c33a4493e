package model

type Board struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}
