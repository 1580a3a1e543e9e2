package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/gavel/internal/ledger/domain"
)

type billAuctionRequest struct {
	AuctionID int64    `json:"auction_id"`
	Price     *float64 `json:"price" binding:"required"`
}

func (s *Server) BillAuction(c *gin.Context) {
	var req billAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	record, err := s.ledgerSvc.RecordCharge(c.Request.Context(), ledgerdomain.ChargeRequest{
		User:      c.Param("identity"),
		AuctionID: req.AuctionID,
		Price:     *req.Price,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": record})
}

func (s *Server) GetBill(c *gin.Context) {
	report, err := s.ledgerSvc.Rate(c.Request.Context(), c.Param("identity"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) GetBillPDF(c *gin.Context) {
	if s.pdf == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	ctx := c.Request.Context()
	report, err := s.ledgerSvc.Rate(ctx, c.Param("identity"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.pdf.GenerateBill(ctx, report)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="bill-%s.pdf"`, report.User))
	c.Data(http.StatusOK, "application/pdf", doc)
}
