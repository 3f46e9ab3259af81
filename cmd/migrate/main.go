package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"

	"paycenter/internal/pkg/config"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		dir   = flag.String("dir", "migrations", "migration directory")
		down  = flag.Bool("down", false, "roll back all migrations")
		steps = flag.Int("steps", 0, "apply n migrations (negative to roll back)")
		force = flag.Int("force", -1, "force version after a failed migration, then exit")
	)
	flag.Parse()

	config.LoadConfig()
	cfg := config.GlobalConfig.Database
	dsn := fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s",
		url.UserPassword(cfg.User, cfg.Password).String(), cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)

	m, err := migrate.New("file://"+*dir, dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	// dirty 状态需要人工确认后再 force，不自动修复
	if *force >= 0 {
		if err := m.Force(*force); err != nil {
			log.Fatal("Failed to force version:", err)
		}
		log.Printf("Forced version %d", *force)
		return
	}

	switch {
	case *steps != 0:
		err = m.Steps(*steps)
	case *down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatal(err)
	}

	version, dirty, _ := m.Version()
	log.Printf("Migration successful, version=%d dirty=%v", version, dirty)
}
