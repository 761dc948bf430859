package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/avolkova/quizauth/internal/api"
	"github.com/avolkova/quizauth/internal/controller"
	"github.com/avolkova/quizauth/internal/migrations"
	"github.com/avolkova/quizauth/internal/service"
	"github.com/avolkova/quizauth/internal/storage/postgres"
	storageredis "github.com/avolkova/quizauth/internal/storage/redis"
	"github.com/avolkova/quizauth/internal/util"

	_ "github.com/lib/pq"
)

func main() {
	ctx := context.Background()
	logger := util.NewZapLogger()

	db, dbCleanup, err := util.NewDBConnection(logger)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	defer dbCleanup()

	if err := migrations.RunMigrations(db, logger, "./internal/migrations"); err != nil {
		logger.Fatal(zap.Error(err))
	}

	redisClient, redisCleanup, err := util.NewRedisClient(logger, util.NewRedisConfig())
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	defer redisCleanup()

	storage := postgres.NewStorage(db)

	tokenService := service.NewTokenService(util.NewTokenConfig())
	sessionStore := storageredis.NewSessionStore(redisClient)
	denylist := storageredis.NewTokenDenylist(redisClient)
	loginLimiter := service.NewLoginLimiter(redisClient, util.NewRateLimiterConfig())
	securityWebhook := service.NewSecurityWebhook(logger, util.GetSecurityWebhookURL())

	authService := service.NewAuthService(
		tokenService,
		sessionStore,
		denylist,
		storage,
		loginLimiter,
		securityWebhook,
		logger,
	)

	controller := controller.NewController(logger, authService, tokenService)

	apiServer := api.NewAPI(controller, authService, logger, util.NewServerConfig())
	apiServer.Run(ctx)
}
