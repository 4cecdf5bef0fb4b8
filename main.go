package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meterscan/config"
	"meterscan/pkg/keystore"
	"meterscan/pkg/scan"

	"github.com/gin-gonic/gin"
)

var (
	cfg          *config.Config
	jwtSecret    []byte
	keys         *keystore.Store
	engines      *engineSet
	scanDefaults scan.Options
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	jwtSecret = []byte(cfg.JWTSecret)
	if cfg.InsecureSecret() {
		log.Printf("WARN JWT_SECRET not set, using development secret")
	}
	if scanDefaults, err = cfg.ScanOptions(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// `meterscan migrate` runs AutoMigrate and seeding, then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		fmt.Println("migration and seeding completed")
		return
	}

	initDB()

	keys, err = keystore.Open(cfg.KeystorePath)
	if err != nil {
		log.Fatalf("keystore: %v", err)
	}
	defer keys.Close()
	engines = newEngineSet(cfg, keys)
	defer engines.Close()

	r := gin.Default()
	setupRoutes(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: %v", err)
			stop()
		}
	}()
	log.Printf("listening on :%s (backend %s, policy %s)", cfg.Port, cfg.OCRBackend, scanDefaults.Policy.ID())
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
