package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"fastmedia/gateway/internal/config"
	"fastmedia/gateway/internal/models"
)

// RateLimiter 限流器: 全局一个, 每个客户端 IP 一个
type RateLimiter struct {
	global     *rate.Limiter
	ipLimiters sync.Map
	ipRPS      rate.Limit
	burst      int
}

// NewRateLimiter 创建限流器; RPS 为 0 表示不限
func NewRateLimiter(cfg *config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		ipRPS: rate.Inf,
		burst: cfg.Burst,
	}
	if cfg.IPRPS > 0 {
		rl.ipRPS = rate.Limit(cfg.IPRPS)
	}
	if cfg.GlobalRPS > 0 {
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), cfg.Burst*2)
	}
	return rl
}

func (rl *RateLimiter) ipLimiter(ip string) *rate.Limiter {
	if l, ok := rl.ipLimiters.Load(ip); ok {
		return l.(*rate.Limiter)
	}
	l, _ := rl.ipLimiters.LoadOrStore(ip, rate.NewLimiter(rl.ipRPS, rl.burst))
	return l.(*rate.Limiter)
}

// IPRateLimit IP 限流中间件
func IPRateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.global != nil && !rl.global.Allow() {
			models.Error(c, http.StatusTooManyRequests, "global rate limit exceeded, please try again later")
			c.Abort()
			return
		}
		if !rl.ipLimiter(c.ClientIP()).Allow() {
			models.Error(c, http.StatusTooManyRequests, "ip rate limit exceeded, please try again later")
			c.Abort()
			return
		}
		c.Next()
	}
}
