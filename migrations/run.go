package main

import (
	"embed"

	"github.com/waterwheel-project/waterwheel/pkg/config"
	"github.com/waterwheel-project/waterwheel/pkg/migrator"
)

//go:embed *.sql
var MigrationsFS embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := migrator.RunMigrations(cfg.DBURL, MigrationsFS); err != nil {
		panic(err)
	}
}
