package handlers

import (
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"tirepos/internal/config"
	"tirepos/internal/obs"
	"tirepos/internal/repos"
	"tirepos/internal/services"
)

type Deps struct {
	SaleHandler      *SaleHandler
	CategoryHandler  *CategoryHandler
	ProductHandler   *ProductHandler
	InventoryHandler *InventoryHandler
	SettingsHandler  *SettingsHandler
	Metrics          *obs.Metrics
}

func NewDeps(db *sqlx.DB, cfg config.Config, metrics *obs.Metrics, logger zerolog.Logger) *Deps {
	catRepo := repos.NewCategoryRepo(db)
	prodRepo := repos.NewProductRepo(db)
	invRepo := repos.NewInventoryRepo(db)
	saleRepo := repos.NewSaleRepo(db)
	settingsRepo := repos.NewSettingsRepo(db)

	catalogSvc := services.NewCatalogService(catRepo, prodRepo)
	invSvc := services.NewInventoryService(invRepo, prodRepo)
	importSvc := services.NewImportService(catRepo, prodRepo, metrics, logger)
	normalizer := services.NewNormalizer(prodRepo, catRepo, cfg.TireFee)
	saleSvc := services.NewSaleService(normalizer, saleRepo, settingsRepo, cfg.DefaultTaxRate, metrics, logger)

	return &Deps{
		SaleHandler:      &SaleHandler{Sales: saleSvc},
		CategoryHandler:  &CategoryHandler{Catalog: catalogSvc},
		ProductHandler:   &ProductHandler{Catalog: catalogSvc, Import: importSvc},
		InventoryHandler: &InventoryHandler{Inv: invSvc},
		SettingsHandler:  &SettingsHandler{Settings: settingsRepo, DefaultTaxRate: cfg.DefaultTaxRate},
		Metrics:          metrics,
	}
}
