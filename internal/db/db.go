// Package db owns the GORM connection. The DSN picks the driver: anything
// that looks like a file path or :memory: opens sqlite, a user:pass@tcp(...)
// DSN opens MySQL.
package db

import (
	"log"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/smartchef/smartchef/internal/chat"
	"github.com/smartchef/smartchef/internal/models"
)

func Connect(dsn string) *gorm.DB {
	var (
		gdb *gorm.DB
		err error
	)
	if strings.Contains(dsn, "@tcp(") {
		gdb, err = gorm.Open(mysql.Open(dsn), &gorm.Config{})
	} else {
		gdb, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	}
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}

	if err := gdb.AutoMigrate(
		&models.User{},
		&chat.Session{},
		&chat.Message{},
		&chat.Job{},
	); err != nil {
		log.Fatalf("db automigrate: %v", err)
	}
	return gdb
}
