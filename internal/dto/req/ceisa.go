package req

type CeisaSubmitRequest struct {
	DocumentNumber string `json:"document_number" binding:"required"`
	DocumentType   string `json:"document_type" binding:"required"`
	Payload        string `json:"payload" binding:"required"`
}

type CeisaStatusRequest struct {
	Reference string `uri:"reference" binding:"required"`
}
