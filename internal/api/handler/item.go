package handler

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shelfmate/library_server/internal/api/middleware"
	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/model/dto"
	"github.com/shelfmate/library_server/internal/pkg/response"
	"github.com/shelfmate/library_server/internal/repository"
)

// maxImportRows 单次导入的最大行数
const maxImportRows = 5000

// ItemHandler 条目写入接口，套餐限制由路由上的 RequireFeature 负责
type ItemHandler struct {
	itemRepo *repository.ItemRepository
}

func NewItemHandler(itemRepo *repository.ItemRepository) *ItemHandler {
	return &ItemHandler{
		itemRepo: itemRepo,
	}
}

// Create 新增单个条目
// POST /api/v1/items
func (h *ItemHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	item := &model.MediaItem{
		OwnerID: userID,
		Title:   strings.TrimSpace(req.Title),
		Barcode: strings.TrimSpace(req.Barcode),
	}
	if item.Title == "" {
		response.ParamError(c, "title is required")
		return
	}
	if err := h.itemRepo.Create(c.Request.Context(), item); err != nil {
		_ = c.Error(err)
		response.ServerError(c, "")
		return
	}

	response.Success(c, item)
}

// Import 从 CSV 批量导入条目，首行为表头，需包含 title 列，可选 barcode 列
// POST /api/v1/items/import
func (h *ItemHandler) Import(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.ParamError(c, "csv file is required")
		return
	}
	src, err := file.Open()
	if err != nil {
		response.ParamError(c, "failed to read uploaded file")
		return
	}
	defer src.Close()

	items, skipped, err := parseItemsCSV(src, userID)
	if err != nil {
		response.ParamError(c, err.Error())
		return
	}

	if err := h.itemRepo.CreateBatch(c.Request.Context(), items); err != nil {
		_ = c.Error(err)
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.ImportResult{Imported: len(items), Skipped: skipped})
}

func parseItemsCSV(r io.Reader, ownerID int64) ([]model.MediaItem, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, errors.New("csv file is empty")
		}
		return nil, 0, errors.New("malformed csv header")
	}

	titleCol, barcodeCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "title":
			titleCol = i
		case "barcode":
			barcodeCol = i
		}
	}
	if titleCol < 0 {
		return nil, 0, errors.New("csv header must contain a title column")
	}

	var items []model.MediaItem
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, errors.New("malformed csv row")
		}
		if len(items)+skipped >= maxImportRows {
			return nil, 0, errors.New("csv file has too many rows")
		}

		title := field(record, titleCol)
		if title == "" || len(title) > 255 {
			skipped++
			continue
		}
		barcode := field(record, barcodeCol)
		if len(barcode) > 64 {
			barcode = ""
		}
		items = append(items, model.MediaItem{OwnerID: ownerID, Title: title, Barcode: barcode})
	}

	return items, skipped, nil
}

func field(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}
