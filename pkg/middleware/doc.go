// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerトークンの検証と期限切れトークンの透過更新、パニックリカバリ、
// CORS設定など、通知サービスの全エンドポイントで共通して使用する
// ミドルウェアを含む。
package middleware
