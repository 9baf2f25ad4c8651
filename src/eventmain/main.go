package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otellogrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdk_trace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"

	"github.com/quantfire/signal-dispatch/src/dbutils"
	"github.com/quantfire/signal-dispatch/src/eventconsumers"
	"github.com/quantfire/signal-dispatch/src/eventmodels"
	"github.com/quantfire/signal-dispatch/src/eventproducers/fireapi"
	"github.com/quantfire/signal-dispatch/src/eventproducers/signalapi"
	"github.com/quantfire/signal-dispatch/src/eventproducers/slotapi"
	"github.com/quantfire/signal-dispatch/src/eventproducers/terminalws"
	"github.com/quantfire/signal-dispatch/src/eventpubsub"
	"github.com/quantfire/signal-dispatch/src/eventservices"
	"github.com/quantfire/signal-dispatch/src/utils"
)

func main() {
	run()
}

// setupOTelSDK bootstraps the OpenTelemetry pipeline.
// If it does not return an error, make sure to call shutdown for proper cleanup.
func setupOTelSDK(ctx context.Context) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	prop := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(prop)

	traceExporter, err := otlptrace.New(ctx, otlptracehttp.NewClient())
	if err != nil {
		return nil, err
	}

	res, _ := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", "signal-dispatch")))

	tracerProvider := sdk_trace.NewTracerProvider(
		sdk_trace.WithBatcher(traceExporter),
		sdk_trace.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	metricExporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		handleErr(err)
		return
	}

	meterProvider := metric.NewMeterProvider(metric.WithReader(metric.NewPeriodicReader(metricExporter)))
	shutdownFuncs = append(shutdownFuncs, meterProvider.Shutdown)
	otel.SetMeterProvider(meterProvider)

	if err = runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		log.Fatalf("runtime.Start: %v", err)
	}

	return
}

var db *gorm.DB

func run() {
	goEnv := utils.GetEnvOrDefault("GO_ENV", "development")

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	if err := utils.InitEnvironmentVariables(goEnv); err != nil {
		log.Panic(err)
	}

	eventpubsub.Init()

	log.SetOutput(os.Stdout)

	log.Infof("Log level set to %v", log.GetLevel())

	postgresHost, err := utils.GetEnv("POSTGRES_HOST")
	if err != nil {
		log.Fatalf("$POSTGRES_HOST not set: %v", err)
	}

	postgresPort, err := utils.GetEnv("POSTGRES_PORT")
	if err != nil {
		log.Fatalf("$POSTGRES_PORT not set: %v", err)
	}

	postgresUser, err := utils.GetEnv("POSTGRES_USER")
	if err != nil {
		log.Fatalf("$POSTGRES_USER not set: %v", err)
	}

	postgresPassword, err := utils.GetEnv("POSTGRES_PASSWORD")
	if err != nil {
		log.Fatalf("$POSTGRES_PASSWORD not set: %v", err)
	}

	postgresDb, err := utils.GetEnv("POSTGRES_DB")
	if err != nil {
		log.Fatalf("$POSTGRES_DB not set: %v", err)
	}

	eventStoreDbURL, err := utils.GetEnv("EVENTSTOREDB_URL")
	if err != nil {
		log.Fatalf("$EVENTSTOREDB_URL not set: %v", err)
	}

	admissionConfigFile, err := utils.GetEnv("ADMISSION_CONFIG_FILE")
	if err != nil {
		log.Fatalf("$ADMISSION_CONFIG_FILE not set: %v", err)
	}

	port, err := utils.GetEnv("PORT")
	if err != nil {
		log.Fatalf("$PORT not set: %v", err)
	}

	// Set up Telemetry
	log.AddHook(otellogrus.NewHook(otellogrus.WithLevels(
		log.PanicLevel,
		log.FatalLevel,
		log.ErrorLevel,
		log.WarnLevel,
		log.InfoLevel,
	)))

	otelShutdown, err := setupOTelSDK(ctx)
	if err != nil {
		log.Fatalf("failed to setup otel sdk: %v", err)
	}

	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			log.Errorf("otel shutdown: %v", err)
		}
	}()

	// Setup postgres
	if db, err = dbutils.InitPostgres(postgresHost, postgresPort, postgresUser, postgresPassword, postgresDb); err != nil {
		log.Fatalf("failed to init db: %v", err)
	}

	// Load admission config
	configData, err := os.ReadFile(admissionConfigFile)
	if err != nil {
		log.Fatalf("failed to read admission config: %v", err)
	}

	admissionConfig, err := eventmodels.ParseAdmissionConfig(configData)
	if err != nil {
		log.Fatalf("failed to parse admission config: %v", err)
	}

	// Setup stores
	ledger := eventservices.NewGormIdempotencyLedger(db)
	bindings := eventservices.NewGormBindingStore(db)
	slots := eventservices.NewGormSlotStore(db)
	profiles := eventservices.NewGormRiskProfileStore(db)

	auditSink, err := eventservices.NewEsdbAuditSink(&wg, eventStoreDbURL)
	if err != nil {
		log.Fatalf("failed to create audit sink: %v", err)
	}

	registry := eventservices.NewTerminalRegistry()

	// Start event clients
	auditSink.Start(ctx)

	tracker := eventconsumers.NewSlotTrackerWorker(&wg, slots, profiles)
	tracker.Start(ctx)

	routerWorker := eventconsumers.NewRouterWorker(&wg, admissionConfig, bindings, ledger, profiles, tracker, registry, auditSink)
	routerWorker.Start(ctx)

	eventconsumers.NewAdmissionWorker(&wg, admissionConfig, auditSink).Start(ctx)
	eventconsumers.NewBindingWorker(&wg, bindings).Start(ctx)
	eventconsumers.NewConfirmationWorker(&wg, routerWorker, tracker, auditSink).Start(ctx)

	// Setup router
	router := mux.NewRouter()
	signalapi.SetupHandler(router.PathPrefix("/signals").Subrouter())
	fireapi.SetupHandler(router.PathPrefix("/fire").Subrouter(), routerWorker)
	slotapi.SetupHandler(router.PathPrefix("/api").Subrouter(), slots, bindings)
	terminalws.SetupHandler(router.PathPrefix("/terminal/ws").Subrouter(), registry)

	// Register pprof handlers
	pprofRouter := router.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.HandleFunc("/", http.HandlerFunc(pprof.Index))
	pprofRouter.HandleFunc("/cmdline", http.HandlerFunc(pprof.Cmdline))
	pprofRouter.HandleFunc("/profile", http.HandlerFunc(pprof.Profile))
	pprofRouter.HandleFunc("/symbol", http.HandlerFunc(pprof.Symbol))
	pprofRouter.HandleFunc("/trace", http.HandlerFunc(pprof.Trace))
	pprofRouter.Handle("/allocs", pprof.Handler("allocs"))
	pprofRouter.Handle("/block", pprof.Handler("block"))
	pprofRouter.Handle("/goroutine", pprof.Handler("goroutine"))
	pprofRouter.Handle("/heap", pprof.Handler("heap"))
	pprofRouter.Handle("/mutex", pprof.Handler("mutex"))
	pprofRouter.Handle("/threadcreate", pprof.Handler("threadcreate"))

	// Setup web server
	srv := &http.Server{
		Handler: otelhttp.NewHandler(router, "server"),
		Addr:    fmt.Sprintf(":%s", port),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// Start web server
	go func() {
		log.Infof("listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil {
			if err.Error() != "http: Server closed" {
				log.Fatalf("failed to start server: %v", err)
			}
		}
	}()

	// Create channel for shutdown signals.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	signal.Notify(stop, syscall.SIGTERM)

	log.Info("Main: init complete")

	// Block here until program is shut down
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("failed to shutdown server: %v", err)
	}

	// Shut down event clients
	cancel()

	// Wait for event clients to shut down
	wg.Wait()

	log.Info("Main: gracefully stopped!")
}
