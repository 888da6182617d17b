package app

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
)

// demoCatalog - каталог и пользователи для локального запуска на in-memory хранилище.
func demoCatalog(now time.Time) ([]domain.Product, []domain.User) {
	products := []domain.Product{
		{ID: "darjeeling-first-flush", Name: "Darjeeling First Flush", PriceMinor: 45000, Stock: 40, Category: "tea"},
		{ID: "assam-gold-tips", Name: "Assam Gold Tips", PriceMinor: 32000, Stock: 60, Category: "tea"},
		{ID: "nilgiri-frost", Name: "Nilgiri Frost", PriceMinor: 28000, Stock: 25, Category: "tea"},
		{ID: "masala-chai", Name: "Masala Chai Blend", PriceMinor: 18000, Stock: 120, Category: "tea"},
		{ID: "coorg-arabica", Name: "Coorg Arabica", PriceMinor: 52000, Stock: 30, Category: "coffee"},
		{ID: "chikmagalur-robusta", Name: "Chikmagalur Robusta", PriceMinor: 38000, Stock: 0, Category: "coffee"},
	}
	for i := range products {
		products[i].IsActive = true
		products[i].CreatedAt = now
		products[i].UpdatedAt = now
	}

	users := []domain.User{
		{ID: "demo-customer", Name: "Demo Customer", Email: "customer@teashop.local", Phone: "+91 90000 00001", Role: domain.UserRoleCustomer, CreatedAt: now},
		{ID: "demo-admin", Name: "Demo Admin", Email: "admin@teashop.local", Phone: "+91 90000 00002", Role: domain.UserRoleAdmin, CreatedAt: now},
	}
	return products, users
}

// seedDemoCatalog наполняет хранилище демо-данными одной транзакцией.
func seedDemoCatalog(ctx context.Context, tx domain.TxManager, now time.Time) error {
	products, users := demoCatalog(now)
	return tx.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		for _, p := range products {
			if err := repos.Products.Save(ctx, p); err != nil {
				return err
			}
		}
		for _, u := range users {
			if err := repos.Users.Save(ctx, u); err != nil {
				return err
			}
		}
		return nil
	})
}
