// Package dbtest opens isolated in-memory sqlite databases carrying the
// marketplace schema for package tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/agromarket-backend/pkg/db/models"
	"github.com/angelmondragon/agromarket-backend/pkg/migrate"
)

// Open returns a fresh database with every model migrated. Each call gets its
// own named memory database so tests never observe each other's rows.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:agromarket_%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError:         true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(migrate.Models()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// Product seeds a product owned by vendorID with the given stock.
func Product(t testing.TB, conn *gorm.DB, vendorID uuid.UUID, name string, stock int) models.Product {
	t.Helper()
	p := models.Product{VendorID: vendorID, Name: name, Stock: stock, MinOrderQty: 1, UnitType: "kg"}
	if err := conn.Create(&p).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return p
}

// StockOf reads the current stock counter for productID.
func StockOf(t testing.TB, conn *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var p models.Product
	if err := conn.First(&p, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return p.Stock
}
