// 包 utils：外部依赖连接工具（Postgres、Redis、TLS 证书）
package utils

import (
	"os"
	"strconv"

	"listing-map/internal/logger"

	"github.com/redis/go-redis/v9"
)

// 文档注释：从环境变量组装轮廓缓存所用的 Redis 连接参数
// 背景：Redis 只是轮廓数据的二级缓存，缺省不启用；REDIS_URL 优先，其次 REDIS_HOST/REDIS_PORT/REDIS_PASS/REDIS_DB。
// 约束：两者都未设置时返回 ok=false；REDIS_URL 无法解析同样视为未配置；REDIS_DB 非法或为负时回退 0。
func RedisOptionsFromEnv() (*redis.Options, bool) {
	if u := os.Getenv("REDIS_URL"); u != "" {
		opt, err := redis.ParseURL(u)
		if err != nil {
			logger.L().Warn("redis_url_invalid", "err", err)
			return nil, false
		}
		return opt, true
	}
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil, false
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	db := 0
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil && n > 0 {
		db = n
	}
	return &redis.Options{Addr: host + ":" + port, Password: os.Getenv("REDIS_PASS"), DB: db}, true
}

// OpenRedisFromEnv 未配置时返回 nil，调用方据此只使用进程内缓存
func OpenRedisFromEnv() *redis.Client {
	opt, ok := RedisOptionsFromEnv()
	if !ok {
		return nil
	}
	logger.L().Debug("redis_env", "addr", opt.Addr, "db", opt.DB)
	return redis.NewClient(opt)
}
