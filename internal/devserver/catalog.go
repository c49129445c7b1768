package devserver

import (
	"fmt"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"

	"github.com/and161185/blindbox/internal/model"
)

// Demo account seeded into every server.
const (
	DemoEmail    = "demo@blindbox.dev"
	DemoPassword = "blindbox-demo"
	DemoName     = "Demo Collector"
)

type seedProduct struct {
	name, brand, price, description string
	stock                           int
}

var seedCatalog = []seedProduct{
	{"Moon Bunny Series 1", "Pop Lab", "12.50", "Twelve pastel bunnies, one secret.", 40},
	{"Star Cat Dreamland", "Pop Lab", "14.00", "Cats lost among the constellations.", 25},
	{"Dino Snack Club", "Tiny Rex", "9.90", "Dinosaurs and their favourite snacks.", 60},
	{"Ocean Whisper", "Shellfire", "15.90", "Sea creatures in frosted resin.", 12},
	{"Robot Tea Party", "Gearling", "18.00", "Tiny robots, tinier teacups.", 8},
	{"Ghost Bakery Limited", "Shellfire", "22.00", "Limited run, two per customer.", 2},
}

func seedProducts() []model.Product {
	out := make([]model.Product, 0, len(seedCatalog))
	for i, sp := range seedCatalog {
		out = append(out, model.Product{
			ID:          fmt.Sprintf("bb-%03d", i+1),
			Name:        sp.name,
			Slug:        slug.Make(sp.name),
			Brand:       sp.brand,
			Price:       decimal.RequireFromString(sp.price),
			Image:       "/images/" + slug.Make(sp.name) + ".png",
			Stock:       sp.stock,
			Description: sp.description,
		})
	}
	return out
}
