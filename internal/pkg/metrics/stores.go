package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// RecordPostgresPool updates pool gauges for the postgres session store.
func RecordPostgresPool(pool *pgxpool.Pool) {
	stats := pool.Stat()

	StoreConnections.WithLabelValues("postgres", "in_use").Set(float64(stats.AcquiredConns()))
	StoreConnections.WithLabelValues("postgres", "idle").Set(float64(stats.IdleConns()))
	StoreConnections.WithLabelValues("postgres", "max").Set(float64(stats.MaxConns()))
}

// RecordRedisPool updates pool gauges for the redis session store.
func RecordRedisPool(stats *redis.PoolStats) {
	StoreConnections.WithLabelValues("redis", "in_use").Set(float64(stats.TotalConns - stats.IdleConns))
	StoreConnections.WithLabelValues("redis", "idle").Set(float64(stats.IdleConns))
	StoreConnections.WithLabelValues("redis", "stale").Set(float64(stats.StaleConns))
}
