package migrate

import "github.com/angelmondragon/agromarket-backend/pkg/db/models"

// Models lists every persisted model in foreign key order.
func Models() []any {
	return []any{
		&models.Product{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
		&models.OutboxEvent{},
	}
}
