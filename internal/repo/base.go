package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// WithTx rebinds the base to tx. A nil tx keeps the current connection.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Affected runs a conditional write and reports how many rows matched.
func Affected(res *gorm.DB) (int64, error) {
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Changed reports whether a conditional write matched at least one row.
func Changed(res *gorm.DB) (bool, error) {
	n, err := Affected(res)
	return n > 0, err
}
