package resp

import "ibisync/internal/model"

type CeisaListResponse struct {
	Records []model.CeisaStatusRecord `json:"records"`
	Total   int                       `json:"total"`
}
