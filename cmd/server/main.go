package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mfcarvalho/financeapp/internal/auth"
	"github.com/mfcarvalho/financeapp/internal/export"
	"github.com/mfcarvalho/financeapp/internal/logger"
	"github.com/mfcarvalho/financeapp/internal/model"
	"github.com/mfcarvalho/financeapp/internal/search"
	"github.com/mfcarvalho/financeapp/internal/server"
	"github.com/mfcarvalho/financeapp/internal/service"
	"github.com/mfcarvalho/financeapp/internal/store"
)

func main() {
	log := logger.New()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8111"
	}

	ctx := context.Background()

	useMemoryStore := os.Getenv("USE_MEMORY_STORE") == "true" || os.Getenv("ENV") == "local"
	skipAuth := os.Getenv("SKIP_AUTH") == "true"
	databaseURL := os.Getenv("DATABASE_URL")

	var storeImpl store.Store
	var firebaseAuth *auth.FirebaseAuth

	switch {
	case useMemoryStore:
		log.Info().Msg("using in-memory store for local development")
		storeImpl = store.NewMemoryStore()
		// Mock auth keeps local development free of Firebase setup.
		firebaseAuth = nil

	case databaseURL != "":
		pgStore, err := store.NewPostgresStore(databaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open postgres store")
		}
		storeImpl = pgStore
		log.Info().Msg("using postgres store")

	default:
		projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
		firestoreClient, err := firestore.NewClient(ctx, projectID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create firestore client")
		}
		defer firestoreClient.Close()
		storeImpl = store.NewFirestoreStore(firestoreClient)
		log.Info().Str("project", projectID).Msg("using firestore store")
	}

	if !useMemoryStore && !skipAuth {
		var err error
		firebaseAuth, err = auth.NewFirebaseAuth(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize firebase auth")
		}
	}

	var opts []service.Option
	var searcher server.Searcher
	if appID := os.Getenv("ALGOLIA_APP_ID"); appID != "" {
		algolia, err := search.NewAlgoliaClient(search.Config{
			AppID:     appID,
			APIKey:    os.Getenv("ALGOLIA_API_KEY"),
			IndexName: os.Getenv("ALGOLIA_INDEX"),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create algolia client")
		}
		opts = append(opts, service.WithSearchIndex(algolia))
		searcher = algolia
		log.Info().Msg("search enabled")
	}

	svc := service.NewFinanceService(storeImpl, logger.Component(log, "service"), opts...)

	// Seed the synthetic connection used by file imports so uploaded
	// statements reconcile like any other sync batch.
	if err := storeImpl.PutBankConnection(ctx, &model.BankConnection{
		ID:     "file-import",
		BankID: "file",
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to seed file-import connection")
	}

	var exporter server.Exporter
	if bucket := os.Getenv("EXPORT_BUCKET"); bucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create storage client")
		}
		defer storageClient.Close()
		exporter = export.NewService(storeImpl, storageClient, bucket, logger.Component(log, "export"))
		log.Info().Str("bucket", bucket).Msg("snapshot export enabled")
	}

	apiMux := http.NewServeMux()
	server.New(svc, exporter, searcher, logger.Component(log, "http")).Register(apiMux)

	// Health stays outside the auth middleware.
	mux := http.NewServeMux()
	mux.Handle("/v1/", auth.Middleware(firebaseAuth)(apiMux))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:1234",
			"http://127.0.0.1:1234",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"User-Agent",
		},
		AllowCredentials: true,
	})

	handler := c.Handler(mux)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}

	log.Info().Str("port", port).Msg("starting server")
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
