package batch

import "context"

type contextKey string

// 操作者をコンテキストで受け渡すためのキー
const actorContextKey contextKey = "actor"

// DefaultActor is used when no authenticated user is present in the context
// コンテキストに認証ユーザーがいない場合に使用される操作者名
const DefaultActor = "system"

// WithActor returns a context carrying the acting user's identifier
// 操作ユーザーIDを保持するコンテキストを返す
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorContextKey, userID)
}

// ActorFromContext extracts the acting user from the context
// コンテキストから操作ユーザーを取得（未設定ならDefaultActor）
func ActorFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(actorContextKey).(string); ok && userID != "" {
		return userID
	}
	return DefaultActor
}
