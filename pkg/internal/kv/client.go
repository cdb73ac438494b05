package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var C *redis.Client

func NewClient() error {
	C = redis.NewClient(&redis.Options{
		Addr:     viper.GetString("redis.addr"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pong, err := C.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("unable to reach redis: %v", err)
	}
	log.Debug().Str("reply", pong).Str("addr", viper.GetString("redis.addr")).Msg("Connected to redis.")
	return nil
}
