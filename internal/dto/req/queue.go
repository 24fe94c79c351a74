package req

type EnqueueRequest struct {
	SyncType   string `json:"sync_type" binding:"required"`
	EntityType string `json:"entity_type" binding:"required"`
	EntityID   string `json:"entity_id" binding:"required"`
	EntityData string `json:"entity_data" binding:"required"`
	Priority   string `json:"priority"`
	Actor      string `json:"actor"`
}

type ListQueueRequest struct {
	Status string `form:"status"`
}

type ItemRequest struct {
	ID string `uri:"id" binding:"required"`
}

type ListAuditsRequest struct {
	Offset int `form:"offset"`
	Limit  int `form:"limit"`
}
