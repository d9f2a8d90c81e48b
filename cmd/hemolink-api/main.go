// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"hemolink/internal/config"
	"hemolink/internal/events"
	httptransport "hemolink/internal/http"
	"hemolink/internal/infra"
	"hemolink/internal/modules/cohort"
	"hemolink/internal/modules/donor"
	"hemolink/internal/modules/hospital"
	"hemolink/internal/modules/patient"
	"hemolink/internal/modules/request"
	"hemolink/internal/modules/schedule"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.IsDev() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).Level(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	// Firebase is optional in development; without it auth is disabled and
	// broadcast fan-out is a no-op.
	var (
		verifier infra.TokenVerifier
		notifier infra.PushSender
	)
	if cfg.Firebase.ProjectID != "" {
		fb, err := infra.NewFirebaseClients(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("firebase init")
		}
		verifier, notifier = fb, fb
	} else if !cfg.IsDev() {
		log.Fatal().Msg("HEMOLINK_FIREBASE_PROJECT_ID is required outside development")
	} else {
		log.Warn().Msg("firebase disabled; auth and push delivery are off")
		notifier = noopNotifier{}
	}

	var geocoder infra.Geocoder
	if cfg.Maps.APIKey != "" {
		geocoder, err = infra.NewMapsGeocoder(cfg.Maps.APIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("maps init")
		}
	} else {
		log.Warn().Msg("maps api key missing; free-text locations will not geocode")
	}

	publisher := events.NewPublisher(redisClient, log)
	classifier := donor.NewClassifier(cfg.Rotation.DonationCooldownDays)

	donorStore := donor.NewStore(dbPool, redisClient)
	donorSvc := donor.NewService(donorStore, classifier, donor.ExactMatchPolicy, log)

	patientStore := patient.NewStore(dbPool)
	patientSvc := patient.NewService(patientStore)

	hospitalStore := hospital.NewStore(dbPool)
	hospitalSvc := hospital.NewService(hospitalStore, geocoder, cfg.Matching, log)

	requestStore := request.NewStore(dbPool, redisClient)
	requestSvc := request.NewService(requestStore, donorSvc, notifier, publisher, log)

	cohortStore := cohort.NewStore(dbPool)
	cohortMgr := cohort.NewManager(cohortStore, donorSvc, classifier, cfg.Rotation, publisher, log)

	scheduleStore := schedule.NewStore(dbPool)
	scheduleSvc := schedule.NewService(
		scheduleStore, cohortMgr, donorSvc, patientSvc, hospitalStore,
		cfg.Rotation, cfg.Matching.DefaultRadiusKm, publisher, log,
	)
	cohortMgr.SetScheduleSource(scheduleSvc)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		Donors:    donorSvc,
		Patients:  patientSvc,
		Hospitals: hospitalSvc,
		Requests:  requestSvc,
		Cohorts:   cohortMgr,
		Schedules: scheduleSvc,
		Verifier:  verifier,
		Log:       log,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().Str("addr", cfg.HTTP.Addr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("serve")
	}
}

// noopNotifier stands in for FCM when Firebase is not configured.
type noopNotifier struct{}

func (noopNotifier) SendMulticast(context.Context, []string, string, string, map[string]string) (int, error) {
	return 0, nil
}
