package middleware

import (
	"net/http"
	"sync"
	"time"

	"paycenter/pkg/response"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// 超过该时长未访问的 IP 限流器会被清理
const (
	limiterIdleTTL   = 10 * time.Minute
	cleanupThreshold = 4096
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter 存储每个IP的限流器
type IPRateLimiter struct {
	ips map[string]*ipLimiter
	mu  sync.Mutex
	r   rate.Limit
	b   int
}

// NewIPRateLimiter 创建一个新的IP限流器
// r: 每秒允许的请求数 (QPS)
// b: 桶的大小 (Burst)
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	return &IPRateLimiter{
		ips: make(map[string]*ipLimiter),
		r:   r,
		b:   b,
	}
}

// GetLimiter 获取指定IP的限流器
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := time.Now()
	entry, exists := i.ips[ip]
	if !exists {
		if len(i.ips) >= cleanupThreshold {
			i.evictIdle(now)
		}
		entry = &ipLimiter{limiter: rate.NewLimiter(i.r, i.b)}
		i.ips[ip] = entry
	}
	entry.lastSeen = now

	return entry.limiter
}

// Size 当前跟踪的 IP 数
func (i *IPRateLimiter) Size() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.ips)
}

// Cleanup 清理空闲的IP限流器
func (i *IPRateLimiter) Cleanup() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.evictIdle(time.Now())
}

func (i *IPRateLimiter) evictIdle(now time.Time) int {
	removed := 0
	cutoff := now.Add(-limiterIdleTTL)
	for ip, entry := range i.ips {
		if entry.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			removed++
		}
	}
	return removed
}

// RateLimitMiddleware 限流中间件
func RateLimitMiddleware(limiter *IPRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := limiter.GetLimiter(c.ClientIP())
		if !l.Allow() {
			response.Error(c, http.StatusTooManyRequests, response.ErrTooManyRequests, "Too many requests")
			c.Abort()
			return
		}
		c.Next()
	}
}
