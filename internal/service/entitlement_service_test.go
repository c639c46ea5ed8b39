package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/pkg/apperr"
	"github.com/shelfmate/library_server/internal/testutil"
)

func TestEntitlementService_UnknownUserTreatedAsFree(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()

	const unknownUser = int64(777001)
	testutil.TestItems(t, f.db, unknownUser, 3)

	d, err := f.entitlements.HasAccess(ctx, unknownUser, model.FeatureMediaItemLimit)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, model.PlanFree, d.Plan)

	testutil.TestItems(t, f.db, unknownUser, 7)
	d, err = f.entitlements.HasAccess(ctx, unknownUser, model.FeatureMediaItemLimit)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, apperr.KindForbidden, d.Kind)
	assert.Equal(t, "media item limit of 10 reached on the free plan", d.Reason)
}

func TestEntitlementService_MediaItemLimitByPlan(t *testing.T) {
	tests := []struct {
		plan    model.Plan
		items   int
		allowed bool
	}{
		{model.PlanFree, 9, true},
		{model.PlanFree, 10, false},
		{model.PlanBasic, 99, true},
		{model.PlanBasic, 100, false},
		{model.PlanPremium, 150, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			f := setupServices(t)
			user := testutil.TestUser(t, f.db)
			testutil.TestSubscription(t, f.db, user.ID, testutil.WithPlan(tt.plan))
			testutil.TestItems(t, f.db, user.ID, tt.items)

			d, err := f.entitlements.HasAccess(context.Background(), user.ID, model.FeatureMediaItemLimit)
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed, "%s with %d items", tt.plan, tt.items)
		})
	}
}

func TestEntitlementService_BooleanFeatures(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()

	users := map[model.Plan]int64{}
	for _, plan := range model.Plans {
		u := testutil.TestUser(t, f.db)
		testutil.TestSubscription(t, f.db, u.ID, testutil.WithPlan(plan))
		users[plan] = u.ID
	}

	for plan, userID := range users {
		for _, feature := range []model.Feature{model.FeatureSharedLists, model.FeatureBatchOperations, model.FeatureCSVImportExport} {
			d, err := f.entitlements.HasAccess(ctx, userID, feature)
			require.NoError(t, err)
			assert.Equal(t, plan == model.PlanPremium, d.Allowed, "%s on %s", feature, plan)
		}

		d, err := f.entitlements.HasAccess(ctx, userID, model.FeatureAdvancedSearch)
		require.NoError(t, err)
		assert.Equal(t, plan != model.PlanFree, d.Allowed, "advanced search on %s", plan)
	}
}

func TestEntitlementService_CancelledSubscriptionFallsBackToFree(t *testing.T) {
	f := setupServices(t)
	user := testutil.TestUser(t, f.db)
	testutil.TestSubscription(t, f.db, user.ID,
		testutil.WithPlan(model.PlanPremium),
		testutil.WithStatus(model.StatusCancelled))

	d, err := f.entitlements.HasAccess(context.Background(), user.ID, model.FeatureSharedLists)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, model.PlanFree, d.Plan)
}

func TestEntitlementService_UnknownFeature(t *testing.T) {
	f := setupServices(t)
	user := testutil.TestUser(t, f.db)

	d, err := f.entitlements.HasAccess(context.Background(), user.ID, model.Feature("teleport"))
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, apperr.KindValidation, d.Kind)
}

func TestEntitlementService_Summary(t *testing.T) {
	f := setupServices(t)
	ctx := context.Background()
	user := testutil.TestUser(t, f.db)
	testutil.TestSubscription(t, f.db, user.ID, testutil.WithPlan(model.PlanBasic))
	testutil.TestItems(t, f.db, user.ID, 12)

	summary, err := f.entitlements.Summary(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "basic", summary.Plan)
	assert.Equal(t, int64(12), summary.ItemCount)
	require.NotNil(t, summary.ItemLimit)
	assert.Equal(t, int64(100), *summary.ItemLimit)
	assert.Len(t, summary.Features, len(model.Features))
	assert.True(t, summary.Features["advanced_search"].Allowed)
	assert.False(t, summary.Features["shared_lists"].Allowed)

	premium := testutil.TestUser(t, f.db)
	testutil.TestSubscription(t, f.db, premium.ID, testutil.WithPlan(model.PlanPremium))
	summary, err = f.entitlements.Summary(ctx, premium.ID)
	require.NoError(t, err)
	assert.Nil(t, summary.ItemLimit)
}
