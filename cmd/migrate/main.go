package main

import (
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/joho/godotenv"

	"forwarder/migrations"
)

// Usage: migrate [up|down|status|version], connection from CLICKHOUSE_* variables
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using system environment variables")
	}

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	opts := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", getEnv("CLICKHOUSE_HOST", "localhost"), getEnv("CLICKHOUSE_PORT", "9000"))},
		Auth: clickhouse.Auth{
			Database: getEnv("CLICKHOUSE_DATABASE", "default"),
			Username: getEnv("CLICKHOUSE_USER", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		},
		DialTimeout: 10 * time.Second,
		Settings:    clickhouse.Settings{"max_execution_time": 60},
	}
	if os.Getenv("CLICKHOUSE_USE_TLS") == "true" {
		opts.TLS = &tls.Config{}
	}

	db := clickhouse.OpenDB(opts)
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping ClickHouse at %s: %v", opts.Addr[0], err)
	}

	log.Printf("Running migrations: %s", command)
	if err := migrations.Run(db, command); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Migration command %q completed", command)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
