// syncd runs the session synchronization daemon: it connects the hosted auth
// provider's event stream to the local profile store and keeps the observable
// session state reconciled until SIGTERM.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"talent-hub/backend/internal/authevent"
	"talent-hub/backend/internal/autherr"
	"talent-hub/backend/internal/config"
	"talent-hub/backend/internal/db"
	policyengine "talent-hub/backend/internal/policy/engine"
	profilerepo "talent-hub/backend/internal/profile/repository"
	profilesvc "talent-hub/backend/internal/profile/service"
	"talent-hub/backend/internal/provider"
	"talent-hub/backend/internal/sessionsync"
	"talent-hub/backend/internal/telemetry"
	telemetryotel "talent-hub/backend/internal/telemetry/otel"
	"talent-hub/backend/internal/telemetry/producer"
	"talent-hub/backend/internal/vault"
)

// translations maps provider error substrings to the messages shown to users.
// The sync core falls back to the raw provider message for anything not here.
var translations = map[string]string{
	"invalid api key":           "Configuração de autenticação inválida. Contate o suporte.",
	"invalid_grant":             "Sessão expirada. Entre novamente.",
	"jwt expired":               "Sessão expirada. Entre novamente.",
	"refresh token not found":   "Sessão expirada. Entre novamente.",
	"invalid token lifetime":    "Sessão inválida. Entre novamente.",
	"invalid signature":         "Sessão inválida. Entre novamente.",
	"invalid login credentials": "E-mail ou senha incorretos.",
	"loop detected":             "Loop de autenticação detectado. Verifique as credenciais do provedor.",
	"account suspended":         "Conta suspensa. Contate o RH.",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if cfg.AuthProviderURL == "" {
		log.Fatal("AUTH_PROVIDER_URL is not set")
	}

	ctx := context.Background()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	sealKey, err := cfg.SealKey()
	if err != nil {
		log.Fatalf("vault: %v", err)
	}
	var artifacts vault.Store
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		artifacts, err = vault.NewRedisStore(client, cfg.ArtifactKey, sealKey)
	} else {
		log.Println("syncd: REDIS_ADDR not set; session artifacts will not survive the process")
		artifacts, err = vault.NewMemoryStore(sealKey)
	}
	if err != nil {
		log.Fatalf("vault: %v", err)
	}

	gate, err := policyengine.NewOPAEvaluator(cfg.SessionPolicy)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}
	if err := gate.HealthCheck(ctx); err != nil {
		log.Fatalf("policy: %v", err)
	}

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "talenthub-syncd", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	var emitter telemetry.EventEmitter = telemetryotel.NewEventEmitter(providers.LoggerProvider)
	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	if kafkaProducer != nil {
		emitter = kafkaProducer
		defer kafkaProducer.Close()
	}

	client := provider.NewClient(cfg.AuthProviderURL, cfg.AuthProviderKey)
	bus := provider.NewBus()

	sync := sessionsync.New(sessionsync.Deps{
		Profiles:    profilesvc.New(profilerepo.NewPostgresRepository(conn)),
		Artifacts:   artifacts,
		Credentials: client,
		Classifier:  autherr.NewClassifier(translations),
		Gate:        gate,
		Emitter:     emitter,
	})
	sync.Start(bus)

	stopWatch := sync.Watch(func(st sessionsync.State) {
		switch {
		case st.Err != nil:
			log.Printf("syncd: state error credential_issue=%t msg=%q", st.Err.CredentialIssue, st.Err.Message)
		case st.Profile != nil:
			log.Printf("syncd: synced principal=%s role=%s", st.Profile.ID, st.Profile.Role)
		case !st.Loading:
			log.Println("syncd: signed out")
		}
	})
	defer stopWatch()

	// Replay a persisted session as the initial event so a restart resumes
	// where the last run left off.
	if sess, err := artifacts.Get(ctx); err != nil {
		log.Printf("syncd: artifact read failed: %v", err)
	} else if sess != nil {
		bus.Emit(authevent.Event{Kind: authevent.KindInitialSession, Payload: sess.User, At: time.Now().UTC()})
	} else {
		bus.Emit(authevent.Event{Kind: authevent.KindInitialSession, At: time.Now().UTC()})
	}

	log.Println("syncd: running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("syncd: shutting down...")
	sync.Stop()
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel: shutdown: %v", err)
	}
	log.Println("syncd: stopped")
}
