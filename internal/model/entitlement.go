package model

import (
	"fmt"

	"github.com/shelfmate/library_server/internal/pkg/apperr"
)

// Feature 受套餐控制的功能
type Feature string

const (
	FeatureMediaItemLimit  Feature = "media_item_limit"
	FeatureSharedLists     Feature = "shared_lists"
	FeatureAdvancedSearch  Feature = "advanced_search"
	FeatureBatchOperations Feature = "batch_operations"
	FeatureCSVImportExport Feature = "csv_import_export"
)

// Features 全部功能
var Features = []Feature{
	FeatureMediaItemLimit,
	FeatureSharedLists,
	FeatureAdvancedSearch,
	FeatureBatchOperations,
	FeatureCSVImportExport,
}

var featureLabels = map[Feature]string{
	FeatureMediaItemLimit:  "media items",
	FeatureSharedLists:     "shared lists",
	FeatureAdvancedSearch:  "advanced search",
	FeatureBatchOperations: "batch operations",
	FeatureCSVImportExport: "CSV import/export",
}

func ParseFeature(s string) (Feature, error) {
	f := Feature(s)
	if _, ok := featureLabels[f]; !ok {
		return "", fmt.Errorf("unknown feature %q", s)
	}
	return f, nil
}

// Unlimited 无上限
const Unlimited int64 = -1

var itemCeilings = map[Plan]int64{
	PlanFree:    10,
	PlanBasic:   100,
	PlanPremium: Unlimited,
}

// ItemCeiling 套餐允许的条目数量上限，unlimited 为 true 时 limit 无意义
func ItemCeiling(p Plan) (limit int64, unlimited bool) {
	c, ok := itemCeilings[p]
	if !ok {
		c = itemCeilings[PlanFree]
	}
	return c, c == Unlimited
}

type gateKey struct {
	plan    Plan
	feature Feature
}

// featureGates 布尔功能的 (套餐, 功能) 决策表
var featureGates = map[gateKey]bool{
	{PlanFree, FeatureSharedLists}:        false,
	{PlanBasic, FeatureSharedLists}:       false,
	{PlanPremium, FeatureSharedLists}:     true,
	{PlanFree, FeatureBatchOperations}:    false,
	{PlanBasic, FeatureBatchOperations}:   false,
	{PlanPremium, FeatureBatchOperations}: true,
	{PlanFree, FeatureCSVImportExport}:    false,
	{PlanBasic, FeatureCSVImportExport}:   false,
	{PlanPremium, FeatureCSVImportExport}: true,
	{PlanFree, FeatureAdvancedSearch}:     false,
	{PlanBasic, FeatureAdvancedSearch}:    true,
	{PlanPremium, FeatureAdvancedSearch}:  true,
}

// AccessDecision 功能访问判定结果
type AccessDecision struct {
	Allowed bool        `json:"allowed"`
	Plan    Plan        `json:"plan"`
	Feature Feature     `json:"feature"`
	Kind    apperr.Kind `json:"kind,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

// Err 拒绝时返回带类别的错误，允许时返回 nil
func (d AccessDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return apperr.New(d.Kind, d.Reason)
}

// NeedsUsage 判定该功能是否需要当前条目数
func NeedsUsage(f Feature) bool {
	return f == FeatureMediaItemLimit
}

// Evaluate 纯函数：根据套餐、功能和当前用量给出判定
func Evaluate(plan Plan, feature Feature, itemCount int64) AccessDecision {
	if !plan.Valid() {
		plan = PlanFree
	}
	decision := AccessDecision{Plan: plan, Feature: feature}

	if feature == FeatureMediaItemLimit {
		limit, unlimited := ItemCeiling(plan)
		if unlimited || itemCount < limit {
			decision.Allowed = true
			return decision
		}
		return deny(decision, apperr.KindForbidden,
			fmt.Sprintf("media item limit of %d reached on the %s plan", limit, plan))
	}

	allowed, ok := featureGates[gateKey{plan, feature}]
	if !ok {
		return deny(decision, apperr.KindValidation, fmt.Sprintf("unknown feature %q", feature))
	}
	if allowed {
		decision.Allowed = true
		return decision
	}

	required := "the premium plan"
	if feature == FeatureAdvancedSearch {
		required = "the basic or premium plan"
	}
	return deny(decision, apperr.KindForbidden,
		fmt.Sprintf("%s is only available on %s (current plan: %s)", featureLabels[feature], required, plan))
}

func deny(d AccessDecision, kind apperr.Kind, reason string) AccessDecision {
	d.Allowed = false
	d.Kind = kind
	d.Reason = reason
	return d
}
