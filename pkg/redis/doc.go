// Package redis opens the Redis connection behind the optional usage counter
// backend in pkg/redisstore. It covers connection setup with retries and a
// connectivity probe; everything else goes through go-redis directly.
package redis
