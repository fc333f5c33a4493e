package model

type ActionLog struct {
	ID          int64  `json:"id"`
	Action      string `json:"action"`
	WorkspaceID string `json:"workspace_id"`
	ActorID     string `json:"actor_id"`
	Ctime       int64  `json:"ctime"`
}

// ActionWindow is what TakeSlot saw in both windows before deciding. Oldest values are
// unix seconds, 0 when the window is empty.
type ActionWindow struct {
	ActorCount      int
	ActorOldest     int64
	WorkspaceCount  int
	WorkspaceOldest int64
	Recorded        bool
}
