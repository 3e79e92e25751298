package assets

import (
	"github.com/gin-gonic/gin"
	"github.com/sgoodman/tradecopy-api/internal/types"
	"github.com/sgoodman/tradecopy-api/pkg/response"
	"gorm.io/gorm"
)

// Service exposes the simulated asset catalog. The trading core only reads
// prices; writes come from the price feed.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ListAssets returns all assets ordered by symbol
func (s *Service) ListAssets() ([]types.Asset, error) {
	var assets []types.Asset
	if err := s.db.Order("symbol ASC").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

// GetAsset returns a single asset
func (s *Service) GetAsset(assetID uint) (*types.Asset, error) {
	var asset types.Asset
	if err := s.db.First(&asset, assetID).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// GetAssetBySymbol returns a single asset by its unique symbol
func (s *Service) GetAssetBySymbol(symbol string) (*types.Asset, error) {
	var asset types.Asset
	if err := s.db.Where("symbol = ?", symbol).First(&asset).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// GinHandlers contains HTTP handlers for asset endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// ListAssetsHandler handles GET requests for the asset catalog
func (h *GinHandlers) ListAssetsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		assets, err := h.service.ListAssets()
		response.Handle(c, assets, err)
	}
}

// GetAssetHandler handles GET requests for a single asset by symbol
// URL parameter: symbol
func (h *GinHandlers) GetAssetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, err := h.service.GetAssetBySymbol(c.Param("symbol"))
		response.Handle(c, asset, err)
	}
}
