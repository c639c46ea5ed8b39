package service

import "context"

type operatorKey struct{}

// AsOperator 标记调用方为运营人员，升级套餐时不要求关联支付订阅
func AsOperator(ctx context.Context) context.Context {
	return context.WithValue(ctx, operatorKey{}, true)
}

// IsOperator 上下文是否由 AsOperator 标记
func IsOperator(ctx context.Context) bool {
	v, _ := ctx.Value(operatorKey{}).(bool)
	return v
}
