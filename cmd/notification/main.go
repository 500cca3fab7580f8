// 通知サービスのエントリポイント。
// ユーザー宛の通知をSSEでリアルタイム配信し、Bearerトークンによる
// 認可と期限切れトークンの透過更新を行う。
package main

import (
	"log"
	"os"

	"github.com/WhoIsVera/real-time-notifications-system/internal/notification"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server, err := notification.NewServer(port)
	if err != nil {
		log.Fatalf("通知サーバーの初期化に失敗: %v", err)
	}

	log.Printf("通知サービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("通知サービスの起動に失敗: %v", err)
	}
}
