package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/npquoc/mallcore/configs"
	"github.com/npquoc/mallcore/internal/adapter/cache"
	httpadapter "github.com/npquoc/mallcore/internal/adapter/http"
	"github.com/npquoc/mallcore/internal/adapter/http/middleware"
	"github.com/npquoc/mallcore/internal/adapter/kafka"
	"github.com/npquoc/mallcore/internal/adapter/queue"
	"github.com/npquoc/mallcore/internal/adapter/repo"
	"github.com/npquoc/mallcore/internal/adapter/ws"
	"github.com/npquoc/mallcore/internal/logging"
	"github.com/npquoc/mallcore/internal/ratelimit"
	"github.com/npquoc/mallcore/internal/usecase"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Router *gin.Engine
}

func InitWithConfig(cfg configs.Config) (*App, func(), error) {
	logging.Init(cfg.App.Name, "./logs/app.log", cfg.App.LogLevel)

	// cleanup tears down, in reverse, everything opened so far; every
	// early return goes through fail so a mid-init error leaks nothing
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// init database
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = db.Close() })
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fail(err)
	}

	// init redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	closers = append(closers, func() { _ = rdb.Close() })
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return fail(err)
	}

	// background tasks live for the whole process
	bgCtx, stopBg := context.WithCancel(context.Background())
	closers = append(closers, stopBg)

	// infra
	orderRepo := repo.NewMySQLOrderRepo(db)
	couponRepo := repo.NewMySQLCouponRepo(db)
	markers := cache.NewRedisMarkerStore(rdb)
	statusCache := cache.NewRedisCache(rdb, cfg.Cache.TTL)
	gate := ratelimit.NewGate(cache.NewRedisCounterStore(rdb))
	hub := ws.NewHub(logging.New("ws"))

	// rabbitmq: order.created fan-out + payment results
	conn, err := amqp091.Dial(cfg.Rabbit.URL)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = conn.Close() })
	ch, err := conn.Channel()
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = ch.Close() })
	producer, err := queue.NewRabbitProducer(ch)
	if err != nil {
		return fail(err)
	}

	// kafka: status event stream out, broadcast notices in
	statusProd, err := kafka.NewSyncProducer(cfg.Kafka.Brokers)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = statusProd.Close() })
	statusPub := kafka.NewStatusProducer(statusProd, cfg.Kafka.TopicStatus)

	// core
	ledger := usecase.NewCouponLedger(couponRepo, logging.New("coupon"))
	lifecycle := usecase.NewOrderLifecycle(orderRepo, couponRepo, ledger,
		markers, statusCache, hub, producer, statusPub,
		cfg.Order.PendingTimeout, logging.New("order"))
	coordinator := usecase.NewExpirationCoordinator(lifecycle, ledger, couponRepo,
		cfg.Order.SweepInterval, logging.New("expiry"))

	// watchdog: sweep always runs; the event listener only where the
	// deployment's Redis publishes keyspace notifications
	go coordinator.RunSweep(bgCtx)
	if cfg.Redis.ExpiryEvents {
		listener := cache.NewExpiryListener(rdb, coordinator, logging.New("expiry"))
		go listener.Run(bgCtx)
	}

	setupQueue(bgCtx, ch, lifecycle)
	setupKafkaListener(bgCtx, cfg, hub)

	// handlers + router + middleware
	h := httpadapter.NewOrderHandler(lifecycle, ledger)
	th := httpadapter.NewTokenHandler(cfg)
	wsh := ws.NewHandler(hub, cfg)
	authz := middleware.NewAuthz(cfg)
	router := httpadapter.NewRouter(cfg, h, th, wsh, authz, gate)

	return &App{Router: router}, cleanup, nil
}

func setupQueue(ctx context.Context, ch *amqp091.Channel, lifecycle *usecase.OrderLifecycle) {
	h := queue.NewPaymentResultHandler(lifecycle)

	router := queue.NewRouter(ch, logging.New("queue"), queue.WithPrefetch(50))
	router.Register(queue.PaymentQueue, queue.JSONHandler[queue.PaymentResultMsg]{HandleFunc: h.Handle})

	if err := router.Start(ctx); err != nil {
		logging.New("queue").Error("router start", "err", err)
	}
}

func setupKafkaListener(ctx context.Context, cfg configs.Config, hub *ws.Hub) {
	grp, err := kafka.NewGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID)
	if err != nil {
		logging.New("kafka").Error("consumer group init", "err", err)
		return
	}

	h := kafka.NewBroadcastHandler(hub)
	consumer := kafka.NewConsumer(grp, []string{cfg.Kafka.TopicBroadcast}, h.Handle, logging.New("kafka"))

	go func() {
		if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
			logging.New("kafka").Error("consumer stopped", "err", err)
		}
	}()
}
