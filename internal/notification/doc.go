// Package notification はリアルタイム通知サービスの内部実装を提供する。
//
// 通知の作成・既読化・削除と、ブロードキャストハブによる全体配信、
// ユーザー単位のポーリング配信をSSEで行う。未読通知は定期スキャンで
// 検出され、既読化されるまで繰り返しハブへ再公開される。
package notification
