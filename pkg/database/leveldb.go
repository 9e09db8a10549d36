package database

import (
	"fmt"

	"minter-core/pkg/logger"

	"github.com/syndtr/goleveldb/leveldb"
	"go.uber.org/zap"
)

// OpenLevelDB 打开 (不存在则创建) path 下的嵌入式数据库
func OpenLevelDB(path string) (*leveldb.DB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	logger.Info("leveldb opened", zap.String("path", path))
	return db, nil
}
