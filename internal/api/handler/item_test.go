package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmate/library_server/internal/api/middleware"
	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/pkg/response"
	"github.com/shelfmate/library_server/internal/testutil"
)

func itemRouter(ctx *testContext, userID int64) *gin.Engine {
	h := NewItemHandler(ctx.ItemRepo)

	router := gin.New()
	router.Use(mockAuth(userID))
	router.POST("/items", middleware.RequireFeature(ctx.Entitlements, model.FeatureMediaItemLimit), h.Create)
	router.POST("/items/import", middleware.RequireFeature(ctx.Entitlements, model.FeatureCSVImportExport), h.Import)
	return router
}

func uploadCSV(t *testing.T, r http.Handler, content string) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "items.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/items/import", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestItemHandler_Create_WithinLimit(t *testing.T) {
	ctx := setupTest(t, nil)
	user := testutil.TestUser(t, ctx.DB)
	testutil.TestItems(t, ctx.DB, user.ID, 9)

	w := performRequest(itemRouter(ctx, user.ID), "POST", "/items", map[string]string{"title": "Dune"})

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Equal(t, "Dune", dataMap(t, resp)["title"])

	count, err := ctx.ItemRepo.CountItems(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)
}

func TestItemHandler_Create_LimitReached(t *testing.T) {
	ctx := setupTest(t, nil)
	user := testutil.TestUser(t, ctx.DB)
	testutil.TestItems(t, ctx.DB, user.ID, 10)

	w := performRequest(itemRouter(ctx, user.ID), "POST", "/items", map[string]string{"title": "Dune"})

	resp := parseResponse(t, w)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodePlanRestricted, resp.Code)
	assert.Equal(t, "media item limit of 10 reached on the free plan", resp.Message)

	count, err := ctx.ItemRepo.CountItems(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)
}

func TestItemHandler_Import_RequiresPremium(t *testing.T) {
	ctx := setupTest(t, nil)
	user := testutil.TestUser(t, ctx.DB)
	testutil.TestSubscription(t, ctx.DB, user.ID, testutil.WithPlan(model.PlanBasic))

	w := uploadCSV(t, itemRouter(ctx, user.ID), "title\nDune\n")

	resp := parseResponse(t, w)
	assert.Equal(t, response.CodePlanRestricted, resp.Code)
	assert.Contains(t, resp.Message, "CSV import/export")
}

func TestItemHandler_Import_Premium(t *testing.T) {
	ctx := setupTest(t, nil)
	user := testutil.TestUser(t, ctx.DB)
	testutil.TestSubscription(t, ctx.DB, user.ID, testutil.WithPlan(model.PlanPremium))

	csv := strings.Join([]string{
		"Barcode,Title",
		"9780441013593,Dune",
		",Neuromancer",
		"123,",
		"",
	}, "\n")
	w := uploadCSV(t, itemRouter(ctx, user.ID), csv)

	resp := parseResponse(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	data := dataMap(t, resp)
	assert.Equal(t, float64(2), data["imported"])
	assert.Equal(t, float64(1), data["skipped"])

	count, err := ctx.ItemRepo.CountItems(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestItemHandler_Import_BadFile(t *testing.T) {
	ctx := setupTest(t, nil)
	user := testutil.TestUser(t, ctx.DB)
	testutil.TestSubscription(t, ctx.DB, user.ID, testutil.WithPlan(model.PlanPremium))
	router := itemRouter(ctx, user.ID)

	w := uploadCSV(t, router, "name,barcode\nDune,1\n")
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
	assert.Equal(t, "csv header must contain a title column", resp.Message)

	w = uploadCSV(t, router, "")
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)

	w = performRequest(router, "POST", "/items/import", nil)
	assert.Equal(t, response.CodeParamError, parseResponse(t, w).Code)
}

func TestParseItemsCSV(t *testing.T) {
	items, skipped, err := parseItemsCSV(strings.NewReader("title\n  Solaris  \n\"Roadside, Picnic\"\n"), 7)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, items, 2)
	assert.Equal(t, "Solaris", items[0].Title)
	assert.Equal(t, "Roadside, Picnic", items[1].Title)
	assert.Equal(t, int64(7), items[1].OwnerID)
}
