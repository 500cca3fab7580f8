// Package token はアクセストークンのライフサイクル管理を提供する。
//
// HMAC署名付きJWTの発行・検証・更新と、署名シークレットの遅延生成を行う。
// シークレットは初回利用時に生成されてストアに永続化され、以降は
// 同じシークレットで全トークンを署名・検証する。
package token
