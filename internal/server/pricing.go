package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	pricetierdomain "github.com/smallbiznis/gavel/internal/pricetier/domain"
)

type createPriceTierRequest struct {
	StartPrice         *float64 `json:"start_price" binding:"required"`
	EndPrice           float64  `json:"end_price"`
	FixedFee           float64  `json:"fixed_fee"`
	VariableFeePercent float64  `json:"variable_fee_percent"`
}

func (s *Server) ListPriceTiers(c *gin.Context) {
	snapshot := s.schedule.Snapshot()
	if snapshot == nil {
		snapshot = pricetierdomain.Snapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}

func (s *Server) CreatePriceTier(c *gin.Context) {
	var req createPriceTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tier := pricetierdomain.PriceTier{
		StartPrice:         *req.StartPrice,
		EndPrice:           req.EndPrice,
		FixedFee:           req.FixedFee,
		VariableFeePercent: req.VariableFeePercent,
	}
	if err := s.schedule.Insert(c.Request.Context(), tier); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tier})
}

// DeletePriceTier removes the tier whose bounds equal start and end exactly.
func (s *Server) DeletePriceTier(c *gin.Context) {
	start, err := parsePriceQuery(c, "start")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	end, err := parsePriceQuery(c, "end")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.schedule.Remove(c.Request.Context(), start, end); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parsePriceQuery(c *gin.Context, key string) (float64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, newValidationError(key, "required", key+" is required")
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, newValidationError(key, "invalid_"+key, key+" must be a number")
	}
	return value, nil
}
