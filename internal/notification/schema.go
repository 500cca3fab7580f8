package notification

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/WhoIsVera/real-time-notifications-system/pkg/migration"
)

// マイグレーションSQL。ファイル名のバージョン順に適用される。
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// initSchema は未適用のマイグレーションをSQLiteデータベースに適用する。
func initSchema(db *sql.DB) error {
	if err := migration.Run(db, migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
