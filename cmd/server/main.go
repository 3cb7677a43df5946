package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"sketchyaf/internal/config"
	"sketchyaf/internal/db"
	"sketchyaf/internal/server"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	conn, err := db.Open(cfg)
	if err != nil {
		log.Printf("running without database: %v", err)
		conn = nil
	} else if err := db.Migrate(conn); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	srv := server.New(conn, cfg)

	if cfg.MonitorIntervalSeconds > 0 {
		interval := time.Duration(cfg.MonitorIntervalSeconds) * time.Second
		log.Printf("timer monitor running in-process interval=%s", interval)
		go srv.RunMonitorLoop(interval, make(chan struct{}))
	}

	addr := ":8080"
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}
	log.Printf("sketchyaf server listening on %s", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}
