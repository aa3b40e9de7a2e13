package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/config"
	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/consumer"
	"github.com/RoyceAzure/lab/storefront/internal/infra/gateway"
	"github.com/RoyceAzure/lab/storefront/internal/infra/producer"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/redis_repo"
	"github.com/RoyceAzure/lab/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// application 集中所有依賴
// transport 層（http/grpc）掛上來的時候從這裡拿服務
type application struct {
	cf    *config.Config
	redis *redis.Client

	store    db.Store
	sessions redis_repo.ISessionRepository
	producer producer.IOrderEventProducer
	consumer consumer.IPaymentEventConsumer

	catalog  service.ICatalogService
	basket   service.IBasketService
	checkout service.ICheckoutService
	payment  service.IPaymentService
}

func newApplication(cf *config.Config) (*application, error) {
	log.Info().Msg("setup database connection")
	conn, err := db.GetDbConn(cf.DbName, cf.DbHost, cf.DbPort, cf.DbUser, cf.DbPas)
	if err != nil {
		return nil, err
	}
	store := db.NewStore(conn)
	if err := store.InitMigrate(); err != nil {
		return nil, err
	}

	log.Info().Msg("setup redis connection")
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cf.RedisAddr,
		Password: cf.RedisPassword,
		DB:       cf.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	sessions := redis_repo.NewSessionRepo(redisClient, cf.SessionTTL())

	log.Info().Str("topic", cf.OrderEventTopic).Msg("setup order event producer")
	orderProducer := producer.NewOrderEventProducer(cf.Brokers(), cf.OrderEventTopic, cf.OrderEventPartitions)

	if cf.WebhookSecret == "" {
		log.Warn().Msg("webhook secret not set, payment event signature verification disabled")
	}
	verifier := gateway.NewWebhookVerifier(cf.WebhookSecret, 0)
	paymentGateway := gateway.NewLocalGateway("http://localhost:" + cf.ServerPort)

	paymentService := service.NewPaymentService(store, sessions, verifier, orderProducer)

	return &application{
		cf:       cf,
		redis:    redisClient,
		store:    store,
		sessions: sessions,
		producer: orderProducer,
		consumer: consumer.NewPaymentEventConsumer(cf.Brokers(), cf.PaymentEventTopic, cf.PaymentConsumerGroup, paymentService),
		catalog:  service.NewCatalogService(store),
		basket:   service.NewBasketService(store, sessions),
		checkout: service.NewCheckoutService(store, sessions, paymentGateway, orderProducer),
		payment:  paymentService,
	}, nil
}

func (app *application) Shutdown() {
	app.consumer.Stop()
	if err := app.producer.Close(); err != nil {
		log.Error().Err(err).Msg("close order event producer failed")
	}
	if err := app.redis.Close(); err != nil {
		log.Error().Err(err).Msg("close redis failed")
	}
	if sqlDB, err := app.store.GetDB().DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Error().Err(err).Msg("close database failed")
		}
	}
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// 標準壺鈴重量帶，上架用的基本盤
var seedRows = []struct {
	weight string
	price  string
	stock  uint
}{
	{"8", "15.99", 20},
	{"12", "18.99", 20},
	{"16", "20.00", 15},
	{"20", "24.99", 15},
	{"24", "35.00", 10},
	{"28", "39.99", 10},
	{"32", "44.99", 8},
	{"36", "47.50", 6},
	{"40", "49.99", 6},
	{"48", "59.99", 4},
}

func seedCatalog(ctx context.Context, catalog service.ICatalogService) error {
	for _, row := range seedRows {
		if _, err := catalog.GetProductByKey(ctx, row.weight); err == nil {
			log.Info().Str("product", row.weight).Msg("product already present, skip")
			continue
		} else if !errors.Is(err, db.ErrProductNotFound) {
			return err
		}

		product := &model.Product{
			Weight:     decimal.RequireFromString(row.weight),
			WeightUnit: model.WeightUnitKg,
			Price:      decimal.RequireFromString(row.price),
			Stock:      row.stock,
		}
		if err := catalog.CreateProduct(ctx, product); err != nil {
			return err
		}
		log.Info().Str("product", product.Label()).Uint("stock", product.Stock).Msg("seeded product")
	}
	return nil
}

func main() {
	seed := flag.Bool("seed", false, "seed the catalog with the standard weight range and exit")
	flag.Parse()

	cf := config.GetConfig()
	setupLogger(cf.LogLevel)

	app, err := newApplication(cf)
	if err != nil {
		log.Fatal().Err(err).Msg("application init failed")
	}

	if *seed {
		if err := seedCatalog(context.Background(), app.catalog); err != nil {
			log.Fatal().Err(err).Msg("seed catalog failed")
		}
		app.Shutdown()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.consumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start payment event consumer failed")
	}
	log.Info().
		Str("topic", cf.PaymentEventTopic).
		Str("group", cf.PaymentConsumerGroup).
		Msg("payment event consumer started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("received shutdown signal")

	app.Shutdown()
	log.Info().Msg("closed completed")
}
