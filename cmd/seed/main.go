package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shinyyama/farm-market-backend/internal/config"
	"github.com/shinyyama/farm-market-backend/internal/db"
	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/repository"
	"github.com/shopspring/decimal"
)

type seedProduct struct {
	Name     string
	Category string
	Unit     string
	Price    string
	Quantity int
	Organic  bool
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gdb, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := db.Migrate(gdb); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	store := repository.NewStore(gdb)

	_, total, err := store.Products().List(ctx, repository.ProductFilter{IncludeHidden: true, Limit: 1})
	if err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if total > 0 && !strings.EqualFold(os.Getenv("FORCE_SEED"), "true") {
		log.Printf("products already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	farmers, buyers := seedUsers()
	catalog := seedCatalog()
	created := 0
	err = store.Transaction(ctx, func(tx *repository.Store) error {
		for i := range farmers {
			if err := tx.Users().Upsert(ctx, &farmers[i]); err != nil {
				return fmt.Errorf("upsert farmer %s: %w", farmers[i].UID, err)
			}
		}
		for i := range buyers {
			if err := tx.Users().Upsert(ctx, &buyers[i]); err != nil {
				return fmt.Errorf("upsert buyer %s: %w", buyers[i].UID, err)
			}
		}
		for i, sp := range catalog {
			farmer := farmers[i%len(farmers)]
			p := &model.Product{
				FarmerUID:   farmer.UID,
				Name:        sp.Name,
				Description: fmt.Sprintf("%s from %s, harvested this week.", sp.Name, farmer.FarmName),
				Category:    sp.Category,
				Unit:        sp.Unit,
				Price:       decimal.RequireFromString(sp.Price),
				Quantity:    sp.Quantity,
				Organic:     sp.Organic,
				Approved:    true,
				Location:    farmer.Address,
				ImageURL:    strPtr(picsumURL(sp.Category, i+1)),
			}
			p.Status = p.StockStatus(p.Quantity)
			if err := tx.Products().Create(ctx, p); err != nil {
				return fmt.Errorf("insert product %q: %w", sp.Name, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Printf("seeded %d farmers, %d buyers, %d products", len(farmers), len(buyers), created)
	return nil
}

func seedUsers() (farmers, buyers []model.User) {
	farmers = []model.User{
		{UID: "seed-farmer-1", Name: "Hana Sato", Email: "hana@example.com", Role: model.RoleFarmer, FarmName: "Green Valley Farm", Address: "Nagano"},
		{UID: "seed-farmer-2", Name: "Ken Mori", Email: "ken@example.com", Role: model.RoleFarmer, FarmName: "Mori Orchard", Address: "Aomori"},
		{UID: "seed-farmer-3", Name: "Yui Tanaka", Email: "yui@example.com", Role: model.RoleFarmer, FarmName: "Sunrise Dairy", Address: "Hokkaido"},
	}
	buyers = []model.User{
		{UID: "seed-buyer-1", Name: "Aoi Ito", Email: "aoi@example.com", Role: model.RoleBuyer, Address: "Tokyo"},
		{UID: "seed-buyer-2", Name: "Ren Kato", Email: "ren@example.com", Role: model.RoleBuyer, Address: "Osaka"},
	}
	return farmers, buyers
}

func seedCatalog() []seedProduct {
	return []seedProduct{
		{Name: "Heirloom Tomatoes", Category: "vegetables", Unit: "kg", Price: "4.50", Quantity: 40, Organic: true},
		{Name: "Fuji Apples", Category: "fruit", Unit: "kg", Price: "3.20", Quantity: 120},
		{Name: "Fresh Milk", Category: "dairy", Unit: "l", Price: "1.80", Quantity: 60},
		{Name: "Baby Spinach", Category: "vegetables", Unit: "bag", Price: "2.40", Quantity: 35, Organic: true},
		{Name: "Asian Pears", Category: "fruit", Unit: "kg", Price: "5.10", Quantity: 25},
		{Name: "Farm Butter", Category: "dairy", Unit: "pack", Price: "6.00", Quantity: 15},
		{Name: "Sweet Corn", Category: "vegetables", Unit: "ear", Price: "0.90", Quantity: 200},
		{Name: "Strawberries", Category: "fruit", Unit: "pack", Price: "7.50", Quantity: 0, Organic: true},
		{Name: "Free-range Eggs", Category: "dairy", Unit: "dozen", Price: "4.20", Quantity: 50},
	}
}

func picsumURL(slug string, index int) string {
	return fmt.Sprintf("https://picsum.photos/seed/%s-%d/600/600", slug, index)
}

func strPtr(s string) *string {
	return &s
}
