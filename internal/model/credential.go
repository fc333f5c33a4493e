package model

type StoredCredential struct {
	WorkspaceID string `json:"workspace_id"`
	Provider    string `json:"provider"`
	Secret      string `json:"-"`
	KeyVersion  string `json:"key_version"`
	Ctime       int64  `json:"ctime"`
	Mtime       int64  `json:"mtime"`
}
