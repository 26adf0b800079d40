package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/TambongStercy/SBC-MS-sub006/challenge"
	"github.com/TambongStercy/SBC-MS-sub006/clock"
	"github.com/TambongStercy/SBC-MS-sub006/collaborators"
	"github.com/TambongStercy/SBC-MS-sub006/config"
	"github.com/TambongStercy/SBC-MS-sub006/conversation"
	"github.com/TambongStercy/SBC-MS-sub006/handler"
	"github.com/TambongStercy/SBC-MS-sub006/idemstore"
	"github.com/TambongStercy/SBC-MS-sub006/logger"
	"github.com/TambongStercy/SBC-MS-sub006/message"
	"github.com/TambongStercy/SBC-MS-sub006/middleware"
	"github.com/TambongStercy/SBC-MS-sub006/mongoclient"
	"github.com/TambongStercy/SBC-MS-sub006/presence"
	"github.com/TambongStercy/SBC-MS-sub006/realtime"
	"github.com/TambongStercy/SBC-MS-sub006/redisclient"
	"github.com/TambongStercy/SBC-MS-sub006/router"
	"github.com/TambongStercy/SBC-MS-sub006/status"
	"github.com/TambongStercy/SBC-MS-sub006/tombola"
	"github.com/TambongStercy/SBC-MS-sub006/vote"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("sbc-core starting")

	ctx := context.Background()

	mongoClient, err := mongoclient.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect failed")
	}
	log.Info().Msg("mongo connected")

	redisClient, err := redisclient.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect failed")
	}
	log.Info().Msg("redis connected")

	pool := collaborators.NewConnectionPool(collaborators.DefaultPoolConfig())

	directory := collaborators.NewDirectoryClient(cfg.DirectoryBaseURL, pool, cfg.DirectoryTimeout, cfg.ServiceAuthSecret)
	payments := collaborators.NewPaymentsClient(cfg.PaymentsBaseURL, pool, cfg.PaymentsTimeout, cfg.ServiceAuthSecret)
	storage := collaborators.NewStorageClient(cfg.StorageBaseURL, pool, cfg.StorageTimeout, cfg.ServiceAuthSecret)
	notifier := collaborators.NewNotifierClient(cfg.NotifierBaseURL, pool, cfg.NotifierTimeout, cfg.ServiceAuthSecret, log)
	moderation := collaborators.NewModeration(cfg.ModerationVariant, cfg.ModerationBaseURL, pool, cfg.ModerationTimeout,
		cfg.ServiceAuthSecret, cfg.ModerationBlockThreshold, cfg.ModerationWarnThreshold, log)

	healthPoller := collaborators.NewHealthPoller(log, cfg.CollaboratorPollInterval,
		directory, payments, storage, notifier, moderation)
	healthPoller.Start()

	clk := clock.Real

	convColl := mongoClient.Collection("conversations")
	if err := conversation.EnsureIndexes(ctx, convColl); err != nil {
		log.Fatal().Err(err).Msg("conversation index setup failed")
	}
	convCore := conversation.NewCore(conversation.NewMongoRepository(convColl), directory, clk)

	msgColl := mongoClient.Collection("messages")
	if err := message.EnsureIndexes(ctx, msgColl); err != nil {
		log.Fatal().Err(err).Msg("message index setup failed")
	}
	msgCore := message.NewCore(message.NewMongoRepository(msgColl), convCore, storage, directory, clk)

	statusColl := mongoClient.Collection("statuses")
	if err := status.EnsureIndexes(ctx, statusColl); err != nil {
		log.Fatal().Err(err).Msg("status index setup failed")
	}
	interactionColl := mongoClient.Collection("status_interactions")
	if err := status.EnsureInteractionIndexes(ctx, interactionColl); err != nil {
		log.Fatal().Err(err).Msg("status interaction index setup failed")
	}
	statusCore := status.NewCore(
		status.NewMongoRepository(statusColl),
		status.NewMongoInteractionRepository(interactionColl),
		moderation, storage, directory, convCore, clk,
	)

	presenceCore := presence.NewCore(redisClient)

	monthColl := mongoClient.Collection("tombola_months")
	if err := tombola.EnsureIndexes(ctx, monthColl); err != nil {
		log.Fatal().Err(err).Msg("tombola month index setup failed")
	}
	ticketColl := mongoClient.Collection("tombola_tickets")
	if err := tombola.EnsureTicketIndexes(ctx, ticketColl); err != nil {
		log.Fatal().Err(err).Msg("tombola ticket index setup failed")
	}
	tombolaCore := tombola.NewCore(
		tombola.NewMongoRepository(monthColl),
		tombola.NewMongoTicketRepository(ticketColl),
		notifier, payments, clk, log,
	)

	challengeColl := mongoClient.Collection("impact_challenges")
	if err := challenge.EnsureIndexes(ctx, challengeColl); err != nil {
		log.Fatal().Err(err).Msg("challenge index setup failed")
	}
	entrepreneurColl := mongoClient.Collection("challenge_entrepreneurs")
	if err := challenge.EnsureEntrepreneurIndexes(ctx, entrepreneurColl); err != nil {
		log.Fatal().Err(err).Msg("challenge entrepreneur index setup failed")
	}
	challengeCore := challenge.NewCore(
		challenge.NewMongoRepository(challengeColl),
		challenge.NewMongoEntrepreneurRepository(entrepreneurColl),
		tombolaCore, payments, clk, cfg.MaxEntrepreneursPerChallenge,
	)

	voteColl := mongoClient.Collection("challenge_votes")
	if err := vote.EnsureIndexes(ctx, voteColl); err != nil {
		log.Fatal().Err(err).Msg("vote index setup failed")
	}
	idemColl := mongoClient.Collection("idempotency_keys")
	idemStore := idemstore.New(idemColl)
	if err := idemStore.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("idempotency index setup failed")
	}
	voteCore := vote.NewCore(
		vote.NewMongoRepository(voteColl),
		challengeCore, tombolaCore, payments, idemStore, clk,
		vote.Config{VotePrice: cfg.VotePrice, MaxTickets: cfg.MaxTicketsPerUserPerMonth},
	)

	authenticator := middleware.WebsocketAuthenticator{Secret: cfg.JWTSecret}
	bus := realtime.NewBus(authenticator, log)
	dispatcher := realtime.NewDispatcher(bus, convCore, msgCore, presenceCore, statusCore)

	deps := router.Dependencies{
		Conversations: handler.NewConversationHandler(convCore, msgCore),
		Messages:      handler.NewMessageHandler(msgCore),
		Statuses:      handler.NewStatusHandler(statusCore),
		Tombolas:      handler.NewTombolaHandler(tombolaCore),
		Challenges:    handler.NewChallengeHandler(challengeCore, voteCore),
		Realtime:      handler.NewRealtimeHandler(bus, dispatcher, log),
		HealthPoller:  healthPoller,
		Mongo:         mongoClient,
		Redis:         redisClient,
	}

	r := router.NewRouter(cfg, log, deps)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	reaperStop := make(chan struct{})
	go runStatusReaper(statusCore, cfg.StatusReaperInterval, log, reaperStop)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("sbc-core listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	close(reaperStop)
	healthPoller.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	} else {
		log.Info().Msg("sbc-core stopped gracefully")
	}

	if err := mongoClient.Close(context.Background()); err != nil {
		log.Warn().Err(err).Msg("mongo close failed")
	}
	if err := redisClient.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close failed")
	}
}

// runStatusReaper periodically expires statuses past their TTL until
// stop is closed.
func runStatusReaper(statuses *status.Core, interval time.Duration, log zerolog.Logger, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := statuses.ExpireReaper(ctx)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("status reaper pass failed")
				continue
			}
			if n > 0 {
				log.Info().Int("expired", n).Msg("status reaper pass complete")
			}
		}
	}
}
