// internal/service/stock/infrastructure/mysql.go
package infrastructure

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewMysqlDB 打开数据库连接并建表。
// TranslateError 打开后，唯一索引冲突会被翻译成 gorm.ErrDuplicatedKey，
// 仓储层依赖这一点来识别重名商品。
func NewMysqlDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}
	if err := db.AutoMigrate(&LedgerModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate stock schema: %w", err)
	}
	return db, nil
}
