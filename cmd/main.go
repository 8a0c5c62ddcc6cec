package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gopher0727/ShoppingRoom/config"
	"github.com/Gopher0727/ShoppingRoom/internal/handlers"
	"github.com/Gopher0727/ShoppingRoom/internal/middlewares"
	"github.com/Gopher0727/ShoppingRoom/internal/notifier"
	"github.com/Gopher0727/ShoppingRoom/internal/repositories"
	"github.com/Gopher0727/ShoppingRoom/internal/routers"
	"github.com/Gopher0727/ShoppingRoom/internal/services"
	"github.com/Gopher0727/ShoppingRoom/internal/storage"
	logger "github.com/Gopher0727/ShoppingRoom/middleware/log"
	"github.com/Gopher0727/ShoppingRoom/pkg/mq"
	"github.com/Gopher0727/ShoppingRoom/pkg/utils"
	"github.com/Gopher0727/ShoppingRoom/pkg/ws"
	"github.com/Gopher0727/ShoppingRoom/utils/ratelimit"
)

func main() {
	configPath := flag.String("config", "./config.toml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("配置初始化失败: %v", err)
	}

	zl, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		log.Fatalf("日志初始化失败: %v", err)
	}
	defer zl.Close()
	lg := zl.Logger

	// 初始化 PostgreSQL
	postgres, err := storage.InitPostgres(&cfg.Postgres)
	if err != nil {
		lg.Fatal("postgres 初始化失败", zap.Error(err))
	}
	if err := storage.Migrate(postgres); err != nil {
		lg.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 初始化 Redis
	redisClient, err := storage.InitRedis(&cfg.Redis)
	if err != nil {
		lg.Fatal("redis 初始化失败", zap.Error(err))
	}
	defer redisClient.Close()

	// 初始化仓储层
	cacheTTL := time.Duration(cfg.Redis.CacheTTLSeconds) * time.Second
	roomRepo := repositories.NewRoomRepository(postgres, redisClient, cacheTTL)
	itemRepo := repositories.NewItemRepository(postgres)
	userRepo := repositories.NewUserRepository(postgres, redisClient, cacheTTL)

	// 连接注册表与通知
	registry := ws.NewRegistry(lg.Named("registry"))

	var opts []notifier.Option
	var pool *utils.KeyedPool
	if cfg.Kafka.Enabled {
		producer, err := mq.NewEventProducer(&cfg.Kafka, lg.Named("kafka"))
		if err != nil {
			lg.Warn("Kafka 生产者初始化失败，事件只推送到 WebSocket", zap.Error(err))
		} else {
			defer producer.Close()
			pool = utils.NewKeyedPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, lg.Named("pool"))
			pool.Start()
			opts = append(opts, notifier.WithSink(producer, pool))
		}
	}
	n := notifier.New(registry, lg.Named("notifier"), opts...)

	// 初始化服务层
	locks := services.NewRoomLocks()
	roomService := services.NewRoomService(roomRepo, userRepo, n, registry, locks, services.RoomOptions{
		InviteCodeLength: cfg.Room.InviteCodeLength,
		InviteMaxRetries: cfg.Room.InviteMaxRetries,
		EvictOnLeave:     cfg.Auth.RequireMembership,
	}, lg.Named("rooms"))
	itemService := services.NewItemService(itemRepo, roomRepo, roomService.Access(), n, locks, lg.Named("items"))
	userService := services.NewUserService(userRepo, lg.Named("users"))

	var tickets *utils.TicketManager
	if cfg.Auth.TicketSecret != "" {
		tickets = utils.NewTicketManager(cfg.Auth.TicketSecret, time.Duration(cfg.Auth.TicketTTLSeconds)*time.Second)
	}
	botKey := middlewares.NewBotKey(cfg.Auth.BotKeyHash)

	// 初始化处理器
	roomHandler := handlers.NewRoomHandler(roomService, tickets, lg.Named("http"))
	itemHandler := handlers.NewItemHandler(itemService, lg.Named("http"))
	wsHandler := handlers.NewWSHandler(registry, roomService, userService, tickets, botKey, cfg.Auth, ws.OptionsFromConfig(&cfg.Websocket), lg.Named("ws"))

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	routers.SetupRoutes(r, routers.Deps{
		Config:   cfg,
		Log:      lg.Named("http"),
		Rooms:    roomHandler,
		Items:    itemHandler,
		WS:       wsHandler,
		Users:    userService,
		BotKey:   botKey,
		Limiter:  ratelimit.NewRedisLimiter(redisClient, lg.Named("ratelimit"), cfg.RateLimit.FailOpen),
		Registry: registry,
	})

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: r,
	}
	go func() {
		lg.Info("正在启动服务器", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("启动服务器失败", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("正在关闭服务器")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("服务器关闭超时", zap.Error(err))
	}
	// 升级后的连接不受 Shutdown 管理，需要主动关闭
	registry.CloseAll()
	if pool != nil {
		pool.Stop()
	}
}
