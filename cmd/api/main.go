package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autopark.kz/internal/files"
	"autopark.kz/internal/fleet"
	"autopark.kz/internal/httpapi"
	"autopark.kz/internal/obs"
	"autopark.kz/internal/rbac"
	"autopark.kz/internal/store/pg"
	"autopark.kz/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	if os.Getenv("AUTOPARK_AUTH_SECRET") == "" {
		log.Fatal("AUTOPARK_AUTH_SECRET is required")
	}

	dsn := os.Getenv("AUTOPARK_PG_DSN")
	if dsn == "" {
		log.Fatal("AUTOPARK_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	// Файловое хранилище опционально: без него API работает, но вложения
	// отключены.
	var blobs files.BlobStore
	if bucket := os.Getenv("AUTOPARK_S3_BUCKET"); bucket != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		s3store, err := files.OpenS3(ctx, files.S3Config{
			Endpoint:     os.Getenv("AUTOPARK_S3_ENDPOINT"),
			Region:       envOr("AUTOPARK_S3_REGION", "eu-central-1"),
			Bucket:       bucket,
			AccessKey:    os.Getenv("AUTOPARK_S3_ACCESS_KEY"),
			SecretKey:    os.Getenv("AUTOPARK_S3_SECRET_KEY"),
			UsePathStyle: os.Getenv("AUTOPARK_S3_PATH_STYLE") == "true",
		})
		cancel()
		if err != nil {
			log.Fatalf("open object storage: %v", err)
		}
		blobs = s3store
	}

	feed := stream.New()
	rbacSvc := rbac.NewService(store)
	fleetSvc := fleet.NewService(store, store, rbacSvc, fleet.WithPublisher(feed))

	opts := []httpapi.Option{httpapi.WithStream(feed)}
	if blobs != nil {
		opts = append(opts, httpapi.WithFiles(files.NewService(blobs, rbacSvc, fleetSvc)))
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB(), Blobs: blobs}, version, rbacSvc, fleetSvc, opts...)

	// RequestID оборачивается последним (самый внешний слой), чтобы id попадал
	// в контекст до логирования и ответов об ошибках.
	handler := httpapi.Logging(api.Handler())
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.CORS(handler)
	handler = httpapi.MaxBodyBytes(handler, 64<<20)
	handler = httpapi.RateLimit(handler, 50, 25)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              envOr("AUTOPARK_ADDR", ":8080"),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second, // SSE-поток держит соединение дольше обычного запроса
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting autopark-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
