package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/acalderon/portfolio-valuation/config"
	"github.com/acalderon/portfolio-valuation/internal/model"
	"github.com/acalderon/portfolio-valuation/utils"
)

// RedisCache holds query responses for valuation series. Entries are flushed
// per portfolio whenever a sweep rewrites its derived rows.
type RedisCache struct {
	redis *redis.Client
	cfg   *config.Config
}

func NewRedisCache(redisClient *redis.Client, cfg *config.Config) *RedisCache {
	return &RedisCache{redis: redisClient, cfg: cfg}
}

func seriesKey(portfolioID int64, from, to string) string {
	return fmt.Sprintf("series:%d:%s:%s", portfolioID, from, to)
}

func (r *RedisCache) GetPortfolioSeries(ctx context.Context, portfolioID int64, from, to string) (model.PortfolioSeries, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisCache.GetPortfolioSeries"
	key := seriesKey(portfolioID, from, to)

	slog.Debug("GetPortfolioSeries start", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key))

	res, err := r.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Error("failed on redis.Get", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
		return model.PortfolioSeries{}, err
	}

	series := model.PortfolioSeries{}
	err = json.Unmarshal([]byte(res), &series)
	if err != nil {
		slog.Error("can't unmarshal series", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.PortfolioSeries{}, errors.New("can't unmarshal series")
	}

	slog.Debug("GetPortfolioSeries finished", slog.String("rqID", rqID), slog.String("op", op))

	return series, nil
}

func (r *RedisCache) SetPortfolioSeries(ctx context.Context, portfolioID int64, from, to string, series model.PortfolioSeries) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisCache.SetPortfolioSeries"
	key := seriesKey(portfolioID, from, to)

	slog.Debug("SetPortfolioSeries start", slog.String("rqID", rqID), slog.String("op", op), slog.String("key", key))

	payload, err := json.Marshal(series)
	if err != nil {
		slog.Error("can't marshal series", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return errors.New("can't marshal series")
	}

	_, err = r.redis.Set(ctx, key, payload, r.cfg.Cache.SeriesExpiration).Result()
	if err != nil {
		slog.Error("failed on redis.Set", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("SetPortfolioSeries finished", slog.String("rqID", rqID), slog.String("op", op))

	return nil
}

// FlushPortfolioSeries drops every cached range of the portfolio. Called
// synchronously after a sweep so stale series are never served.
func (r *RedisCache) FlushPortfolioSeries(ctx context.Context, portfolioID int64) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "RedisCache.FlushPortfolioSeries"

	slog.Debug("FlushPortfolioSeries start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("portfolioID", portfolioID))

	pattern := fmt.Sprintf("series:%d:*", portfolioID)
	iter := r.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.redis.Del(ctx, iter.Val()).Err(); err != nil {
			slog.Error("failed on redis.Del", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return err
		}
	}
	if err := iter.Err(); err != nil {
		slog.Error("failed on scan iterator", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	slog.Debug("FlushPortfolioSeries finished", slog.String("rqID", rqID), slog.String("op", op))

	return nil
}
