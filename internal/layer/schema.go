package layer

import (
	"database/sql"

	"listing-map/internal/logger"
)

// 背景：首次运行自动创建图层表与索引
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；几何以 WKB 存储，外包框拆为四列便于范围查询
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _map_layers (
            id UUID PRIMARY KEY,
            name TEXT NOT NULL DEFAULT '',
            geom BYTEA NOT NULL,
            radius DOUBLE PRECISION NOT NULL DEFAULT 0,
            min_lon DOUBLE PRECISION NOT NULL,
            min_lat DOUBLE PRECISION NOT NULL,
            max_lon DOUBLE PRECISION NOT NULL,
            max_lat DOUBLE PRECISION NOT NULL,
            visible BOOLEAN NOT NULL DEFAULT TRUE,
            opacity DOUBLE PRECISION NOT NULL DEFAULT 1,
            source TEXT NOT NULL,
            editing BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_map_layers_bbox ON _map_layers(min_lon, min_lat, max_lon, max_lat)`,
		`CREATE TABLE IF NOT EXISTS _map_layer_edits (
            layer_id UUID PRIMARY KEY REFERENCES _map_layers(id) ON DELETE CASCADE,
            name TEXT NOT NULL,
            geom BYTEA NOT NULL,
            radius DOUBLE PRECISION NOT NULL,
            visible BOOLEAN NOT NULL,
            opacity DOUBLE PRECISION NOT NULL,
            started_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
