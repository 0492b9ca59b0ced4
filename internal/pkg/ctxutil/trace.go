package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

type companyKey struct{}

// WithCompanyID stores the authenticated tenant on the request context.
func WithCompanyID(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, companyKey{}, companyID)
}

func CompanyID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(companyKey{}).(int64)
	return id, ok && id > 0
}
