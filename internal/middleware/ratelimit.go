package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/arsia/internal/model"
)

// 制限種別。ログとメトリクスのラベルに使う。
const (
	LimitGeneral           = "general"
	LimitPublicationCreate = "publication_create"
)

// RateLimitRecorder はレート制限による拒否の記録先。metrics.Collectorが実装する。
type RateLimitRecorder interface {
	RecordRateLimited(limit string)
}

// RateLimiterConfig はユーザー単位のトークンバケット設定。
type RateLimiterConfig struct {
	GeneralRate            rate.Limit // req/sec
	GeneralBurst           int
	PublicationCreateRate  rate.Limit // req/sec
	PublicationCreateBurst int
	// IdleTTL の間アクセスのないユーザーのバケットは破棄する。
	IdleTTL time.Duration
	// Recorder がnilなら拒否を記録しない。
	Recorder RateLimitRecorder
}

// NewRateLimiterConfig は1分あたりの許可数から設定を作る。バーストは1分ぶん。
// 投稿作成は画像処理と外部キャプション生成を伴うため、API全般とは別枠で絞る。
func NewRateLimiterConfig(generalPerMinute, publicationCreatePerMinute int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:            perMinute(generalPerMinute),
		GeneralBurst:           generalPerMinute,
		PublicationCreateRate:  perMinute(publicationCreatePerMinute),
		PublicationCreateBurst: publicationCreatePerMinute,
		IdleTTL:                10 * time.Minute,
	}
}

// DefaultRateLimiterConfig はAPI全般 120 req/min、投稿作成 10 req/min の設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 10)
}

func perMinute(n int) rate.Limit {
	return rate.Limit(float64(n) / 60.0)
}

// bucketSet はユーザーIDごとのrate.Limiterを遅延生成して保持する。
type bucketSet struct {
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newBucketSet(limit rate.Limit, burst int) *bucketSet {
	return &bucketSet{limit: limit, burst: burst, buckets: make(map[string]*bucket)}
}

// take はトークンを1つ消費する。足りなければ消費せず、次に取れるまでの待ち時間を返す。
func (s *bucketSet) take(userID string, now time.Time) (bool, time.Duration) {
	s.mu.Lock()
	b, ok := s.buckets[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[userID] = b
	}
	b.seen = now
	s.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (s *bucketSet) sweep(olderThan time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.buckets {
		if b.seen.Before(olderThan) {
			delete(s.buckets, id)
		}
	}
}

func (s *bucketSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RateLimiter は認証済みユーザー単位のレート制限を提供する。
// API全般と投稿作成は独立したバケットで数える。
type RateLimiter struct {
	config  RateLimiterConfig
	general *bucketSet
	create  *bucketSet

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter はRateLimiterを生成し、アイドルなバケットの掃除を開始する。
// 使い終わったらStopを呼ぶこと。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		general: newBucketSet(config.GeneralRate, config.GeneralBurst),
		create:  newBucketSet(config.PublicationCreateRate, config.PublicationCreateBurst),
		stopCh:  make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Stop は掃除用のゴルーチンを止める。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限を行う。SessionMiddlewareの後に置くこと。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(LimitGeneral, rl.general)
}

// PublicationCreateMiddleware は投稿作成のレート制限を行う。
func (rl *RateLimiter) PublicationCreateMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(LimitPublicationCreate, rl.create)
}

func (rl *RateLimiter) middleware(limit string, set *bucketSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			allowed, wait := set.take(userID, time.Now())
			if !allowed {
				slog.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", limit),
					slog.Duration("retry_after", wait),
				)
				if rl.config.Recorder != nil {
					rl.config.Recorder.RecordRateLimited(limit)
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
				WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds は待ち時間を切り上げた秒数にする。最低1秒。
func retryAfterSeconds(wait time.Duration) int {
	return max(1, int(math.Ceil(wait.Seconds())))
}

// GeneralLimiterCount は保持しているAPI全般のバケット数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.len() }

// PublicationCreateLimiterCount は保持している投稿作成のバケット数を返す。
func (rl *RateLimiter) PublicationCreateLimiterCount() int { return rl.create.len() }

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.config.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			cutoff := now.Add(-rl.config.IdleTTL)
			rl.general.sweep(cutoff)
			rl.create.sweep(cutoff)
		case <-rl.stopCh:
			return
		}
	}
}
