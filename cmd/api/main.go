package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kiosk/internal/attendance"
	"kiosk/internal/auth"
	"kiosk/internal/config"
	"kiosk/internal/directory"
	"kiosk/internal/httpmiddleware"
	"kiosk/internal/linkreq"
	"kiosk/internal/notify"
	"kiosk/internal/queue"
	"kiosk/internal/store"
	"kiosk/internal/timekey"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	// NewDB only returns a nil wrapper when the pool cannot be opened at
	// all; an unreachable database still yields a usable handle, so the
	// server starts degraded and recovers once Postgres is back.
	db, err := store.NewDB(cfg.DatabaseURL)
	if db == nil {
		return fmt.Errorf("db open failed: %w", err)
	}
	if err != nil {
		log.Printf("warning: db not reachable: %v", err)
	}
	defer db.Close()
	if err := store.EnsureSchema(context.Background(), db.Client); err != nil {
		log.Printf("warning: schema bootstrap failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.TapQueue
	if cfg.QueueBackend == "memory" {
		q = queue.NewMemory(64)
	} else {
		q = queue.NewRedis(redisClient.Client, "")
	}

	dir := directory.NewPostgres(db.Client)
	logs := attendance.NewTieredLogStore(
		attendance.NewPostgresShard(db.Client),
		attendance.NewPostgresLegacy(db.Client),
	)

	var cache attendance.CacheStore
	if cfg.CacheBackend == "memory" {
		cache = attendance.NewMemoryCache()
	} else {
		cache = attendance.NewRedisCache(redisClient.Client)
	}

	toggler := attendance.NewToggleEngine(dir, logs)
	daily := attendance.NewDailyAggregator(logs, dir)
	monthly := attendance.NewMonthlyCacheManager(logs, dir, daily, cache)

	var notifier linkreq.Notifier
	if cfg.QueueBackend == "memory" {
		notifier = linkreq.NewMemoryNotifier()
	} else {
		notifier = linkreq.NewRedisNotifier(redisClient.Client)
	}
	broker := linkreq.NewBroker(linkreq.NewPostgresStore(db.Client), notifier)
	feed := notify.NewPostgresFeed(db.Client)

	ctx := context.Background()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewIPRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin).Middleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/kiosks/register", func(c *gin.Context) {
		var req struct {
			KioskID string `json:"kiosk_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(req.KioskID, auth.RoleKiosk, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.KioskAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/taps", func(c *gin.Context) {
		var req struct {
			CardID string `json:"card_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outcome, err := toggler.Tap(c.Request.Context(), req.CardID)
		if err != nil {
			// Generic retry message; the kiosk auto-resets to idle.
			c.JSON(http.StatusInternalServerError, gin.H{"error": "attendance write failed, try again"})
			return
		}
		if outcome.Status == attendance.TapUnregistered {
			c.JSON(http.StatusOK, gin.H{"status": outcome.Status})
			return
		}
		publishTap(ctx, q, outcome)
		c.JSON(http.StatusOK, gin.H{
			"status": outcome.Status,
			"name":   outcome.User.DisplayName(),
			"log":    outcome.Log,
		})
	})

	authGroup.POST("/taps/manual", func(c *gin.Context) {
		var req struct {
			UID string `json:"uid" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		outcome, err := toggler.ToggleUser(c.Request.Context(), req.UID)
		if errors.Is(err, directory.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "attendance write failed, try again"})
			return
		}
		publishTap(ctx, q, outcome)
		c.JSON(http.StatusOK, gin.H{
			"status": outcome.Status,
			"name":   outcome.User.DisplayName(),
			"log":    outcome.Log,
		})
	})

	authGroup.GET("/users", func(c *gin.Context) {
		users, err := dir.AllUsers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	})

	authGroup.POST("/users", func(c *gin.Context) {
		var u directory.User
		if err := c.ShouldBindJSON(&u); err != nil || u.UID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "uid required"})
			return
		}
		if err := dir.CreateUser(c.Request.Context(), u); err != nil {
			if errors.Is(err, directory.ErrCardTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "card already linked"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"uid": u.UID})
	})

	authGroup.PATCH("/users/:id", func(c *gin.Context) {
		var upd directory.UserUpdate
		var body struct {
			FirstName *string           `json:"firstname"`
			LastName  *string           `json:"lastname"`
			Grade     *int              `json:"grade"`
			TeamID    *string           `json:"team_id"`
			CardID    *string           `json:"card_id"`
			Role      *string           `json:"role"`
			Status    *directory.Status `json:"status"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		upd = directory.UserUpdate{
			FirstName: body.FirstName, LastName: body.LastName, Grade: body.Grade,
			TeamID: body.TeamID, CardID: body.CardID, Role: body.Role, Status: body.Status,
		}
		if err := dir.UpdateUser(c.Request.Context(), c.Param("id"), upd); err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.GET("/users/:id/logs", func(c *gin.Context) {
		to := time.Now()
		from := to.AddDate(0, -1, 0)
		if v := c.Query("from"); v != "" {
			if t, err := timekey.ParseDateKey(v); err == nil {
				from = t
			}
		}
		if v := c.Query("to"); v != "" {
			if t, err := timekey.ParseDateKey(v); err == nil {
				to = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
			}
		}
		limit := 50
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		userLogs, err := logs.QueryUserLogs(c.Request.Context(), c.Param("id"), from, to, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": userLogs})
	})

	authGroup.GET("/teams", func(c *gin.Context) {
		teams, err := dir.AllTeams(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"teams": teams})
	})

	authGroup.POST("/teams", func(c *gin.Context) {
		var t directory.Team
		if err := c.ShouldBindJSON(&t); err != nil || t.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
			return
		}
		id, err := dir.CreateTeam(c.Request.Context(), t)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})

	authGroup.PATCH("/teams/:id", func(c *gin.Context) {
		var body struct {
			Name      *string `json:"name"`
			LeaderUID *string `json:"leader_uid"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		err := dir.UpdateTeam(c.Request.Context(), c.Param("id"), directory.TeamUpdate{
			Name: body.Name, LeaderUID: body.LeaderUID,
		})
		if errors.Is(err, directory.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown team"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.GET("/stats/daily", func(c *gin.Context) {
		date := time.Now()
		if v := c.Query("date"); v != "" {
			t, err := timekey.ParseDateKey(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
				return
			}
			date = t
		}
		day, err := daily.Aggregate(c.Request.Context(), date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, day)
	})

	authGroup.GET("/stats/monthly", func(c *gin.Context) {
		year, month, ok := yearMonthParams(c)
		if !ok {
			return
		}
		stats, err := monthly.MonthStats(c.Request.Context(), year, month)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"year": year, "month": int(month), "days": stats})
	})

	authGroup.DELETE("/stats/monthly/:year/:month/cache", func(c *gin.Context) {
		year, err := strconv.Atoi(c.Param("year"))
		monthNum, err2 := strconv.Atoi(c.Param("month"))
		if err != nil || err2 != nil || monthNum < 1 || monthNum > 12 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad year/month"})
			return
		}
		if err := monthly.Invalidate(c.Request.Context(), year, time.Month(monthNum)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.DELETE("/stats/cache", func(c *gin.Context) {
		if err := monthly.InvalidateAll(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	authGroup.POST("/link-requests", func(c *gin.Context) {
		var req struct {
			Token string `json:"token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, err := broker.Create(c.Request.Context(), req.Token)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})

	authGroup.GET("/link-requests/:token", func(c *gin.Context) {
		req, err := broker.Get(c.Request.Context(), c.Param("token"))
		if errors.Is(err, linkreq.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown token"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, req)
	})

	authGroup.PATCH("/link-requests/:token", func(c *gin.Context) {
		var body struct {
			Status linkreq.Status `json:"status" binding:"required"`
			CardID string         `json:"card_id"`
			UID    string         `json:"uid"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req, err := broker.Advance(c.Request.Context(), c.Param("token"), body.Status, body.CardID, body.UID)
		if errors.Is(err, linkreq.ErrBadStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be waiting, opened or done"})
			return
		}
		if errors.Is(err, linkreq.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown token"})
			return
		}
		if errors.Is(err, linkreq.ErrTransition) {
			c.JSON(http.StatusConflict, gin.H{"error": "status cannot go backward"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, req)
	})

	// SSE stream of link-request changes; the kiosk holds this open until
	// the request reaches "done".
	authGroup.GET("/link-requests/:token/watch", func(c *gin.Context) {
		updates, stop, err := broker.Subscribe(c.Request.Context(), c.Param("token"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		defer stop()

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")

		if cur, err := broker.Get(c.Request.Context(), c.Param("token")); err == nil {
			c.SSEvent("status", cur)
			c.Writer.Flush()
		}
		c.Stream(func(w io.Writer) bool {
			select {
			case req, ok := <-updates:
				if !ok {
					return false
				}
				c.SSEvent("status", req)
				return req.Status != linkreq.StatusDone
			case <-c.Request.Context().Done():
				return false
			}
		})
	})

	authGroup.GET("/notifications", func(c *gin.Context) {
		limit := 5
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		items, err := feed.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": items})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// publishTap hands the tap's date key to the worker for cache warming.
// Queue trouble never fails the tap itself.
func publishTap(ctx context.Context, q queue.TapQueue, outcome attendance.TapOutcome) {
	ev := queue.TapEvent{
		DateKey:  timekey.DateKey(outcome.Log.Timestamp),
		TappedAt: outcome.Log.Timestamp,
	}
	if err := q.Publish(ctx, ev); err != nil {
		log.Printf("queue publish failed: %v", err)
	}
}

func yearMonthParams(c *gin.Context) (int, time.Month, bool) {
	year, err := strconv.Atoi(c.Query("year"))
	monthNum, err2 := strconv.Atoi(c.Query("month"))
	if err != nil || err2 != nil || monthNum < 1 || monthNum > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year and month (1-12) required"})
		return 0, 0, false
	}
	return year, time.Month(monthNum), true
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
