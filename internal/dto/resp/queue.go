package resp

import "ibisync/internal/model"

type EnqueueResponse struct {
	Item *model.SyncQueueItem `json:"item"`
}

type ListQueueResponse struct {
	Items []model.SyncQueueItem `json:"items"`
	Total int                   `json:"total"`
}

type ProcessResponse struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

type ClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}
