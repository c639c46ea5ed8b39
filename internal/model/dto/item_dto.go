package dto

// CreateItemRequest 新增条目请求
type CreateItemRequest struct {
	Title   string `json:"title" binding:"required,max=255"`
	Barcode string `json:"barcode" binding:"max=64"`
}

// ImportResult CSV 导入结果
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
