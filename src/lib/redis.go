package lib

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"

	"gbs/src/types"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

func GetRedisClient() *redis.Client {
	if redisClient != nil {
		return redisClient
	}
	redisHost := os.Getenv("REDIS_HOST")
	opt, err := redis.ParseURL(redisHost)
	if err != nil {
		log.Printf("[redis] Error parsing connection string: %s\n", err.Error())
		return nil
	}
	rdb := redis.NewClient(opt)
	redisClient = rdb
	return rdb
}

// NewRedisClient Replace redis instance with custom client implementation
func NewRedisClient(c *redis.Client) *redis.Client {
	redisClient = c
	return redisClient
}

// CacheDropSnapshot keeps the latest drop change around for clients that poll
// instead of subscribing. Short TTL, the realtime channel is authoritative.
func CacheDropSnapshot(change *types.DropChange) {
	rdb := GetRedisClient()
	if rdb == nil {
		return
	}
	b, err := json.Marshal(change)
	if err != nil {
		log.Printf("Failed to marshal drop snapshot: %s\n", err.Error())
		return
	}
	key := DropSnapshotKey(change.ID)
	if err := rdb.SetEx(context.Background(), key, string(b), 2*time.Minute).Err(); err != nil {
		log.Printf("Failed to cache snapshot for key %s: %s\n", key, err.Error())
	}
}

func GetDropSnapshot(dropID uint) (*types.DropChange, error) {
	rdb := GetRedisClient()
	if rdb == nil {
		return nil, redis.Nil
	}
	val, err := rdb.Get(context.Background(), DropSnapshotKey(dropID)).Result()
	if err != nil {
		return nil, err
	}
	var change types.DropChange
	if err := json.Unmarshal([]byte(val), &change); err != nil {
		return nil, err
	}
	return &change, nil
}

func DropSnapshotKey(dropID uint) string {
	return "drop_snapshot:" + strconv.FormatUint(uint64(dropID), 10)
}
