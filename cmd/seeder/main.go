//cmd/seeder/main.go
package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/mailer-backend/internal/config"
	"github.com/unclebandit/mailer-backend/internal/db"
	"github.com/unclebandit/mailer-backend/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "directory holding config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	logging.Setup(cfg.Log)

	conn, err := db.Open(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("open database")
	}
	defer conn.Close()

	if err := db.RunMigrations(conn); err != nil {
		logrus.WithError(err).Fatal("migrate")
	}

	seedFiles := flag.Args()
	if len(seedFiles) == 0 {
		seedFiles = []string{
			"seed/users.sql",
			"seed/clients.sql",
			"seed/messages.sql",
		}
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			logrus.WithError(err).WithField("file", file).Fatal("read seed file")
		}
		if _, err := conn.Exec(string(content)); err != nil {
			logrus.WithError(err).WithField("file", file).Fatal("execute seed file")
		}
		logrus.WithField("file", file).Info("seeded")
	}

	logrus.Info("database seeding completed")
}
