package http

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/wallet-ledger/internal/service"
	"github.com/shopspring/decimal"
)

func RegisterHandlers(r gin.IRouter, svc *service.WalletService) {
	w := r.Group("/wallet")
	{
		w.POST("/transfer", transferHandler(svc))
		w.GET("/inquiry/:id", inquiryHandler(svc))
		w.GET("/delete/:id", deleteHandler(svc))
		w.DELETE("/:id", deleteHandler(svc))
		w.POST("/:id/debit", debitHandler(svc))
		w.POST("/:id/credit", creditHandler(svc))
		w.GET("/:id/history", historyHandler(svc))
		w.GET("/receipt/:reference", receiptHandler(svc))
	}
}

func userID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid user id %q", errBadRequest, c.Param("id"))
	}
	return id, nil
}

func bindJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

type transferReq struct {
	FromID int64           `json:"from_id" binding:"required"`
	ToID   int64           `json:"to_id" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func transferHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transferReq
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
		w, err := svc.Transfer(c.Request.Context(), req.FromID, req.ToID, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, w)
	}
}

func inquiryHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := userID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		w, err := svc.GetOrCreate(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, w)
	}
}

func deleteHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := userID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := svc.Delete(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, true)
	}
}

type amountReq struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func adjustHandler(apply func(*gin.Context, int64, decimal.Decimal) (interface{}, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := userID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		var req amountReq
		if err := bindJSON(c, &req); err != nil {
			respondError(c, err)
			return
		}
		w, err := apply(c, id, req.Amount)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, w)
	}
}

func debitHandler(svc *service.WalletService) gin.HandlerFunc {
	return adjustHandler(func(c *gin.Context, id int64, amt decimal.Decimal) (interface{}, error) {
		return svc.UpdateBalance(c.Request.Context(), id, amt)
	})
}

func creditHandler(svc *service.WalletService) gin.HandlerFunc {
	return adjustHandler(func(c *gin.Context, id int64, amt decimal.Decimal) (interface{}, error) {
		return svc.Credit(c.Request.Context(), id, amt)
	})
}

func historyHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := userID(c)
		if err != nil {
			respondError(c, err)
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
		if err != nil {
			respondError(c, fmt.Errorf("%w: invalid limit", errBadRequest))
			return
		}
		sinceStr := c.DefaultQuery("since", time.Now().Add(-24*time.Hour).Format(time.RFC3339))
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			respondError(c, fmt.Errorf("%w: invalid since", errBadRequest))
			return
		}
		txs, err := svc.History(c.Request.Context(), id, limit, since)
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, txs)
	}
}

func receiptHandler(svc *service.WalletService) gin.HandlerFunc {
	return func(c *gin.Context) {
		rc, err := svc.Receipt(c.Request.Context(), c.Param("reference"))
		if err != nil {
			respondError(c, err)
			return
		}
		respondOK(c, rc)
	}
}
