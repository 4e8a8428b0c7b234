package main

import (
	"errors"
	"fmt"
	"net/http"

	"gbs/src/common"
	"gbs/src/db"
	"gbs/src/lib"
	"gbs/src/models"
	"gbs/src/types"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func bookingHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/drops/:id/bookings", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.CreateBookingRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			booking, err := common.GetEngine().RecordBooking(ctx, params.ID, userId, &body)
			if err != nil {
				switch {
				case errors.Is(err, types.ErrDropNotActive):
					ctx.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
				case errors.Is(err, types.ErrOutOfBounds):
					ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				case errors.Is(err, types.ErrConcurrencyConflict):
					ctx.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
				case errors.Is(err, gorm.ErrRecordNotFound):
					ctx.JSON(http.StatusNotFound, gin.H{"success": false, "error": "record not found"})
				default:
					var perr *types.PaymentProviderError
					if errors.As(err, &perr) {
						ctx.JSON(http.StatusPaymentRequired, gin.H{"success": false, "error": perr.Error()})
						return
					}
					ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Error while processing request"})
				}
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"success": true, "data": booking})
		}).
		GET("/bookings", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			var bookings []models.Booking
			db := db.GetDb()
			if err := db.
				Model(&models.Booking{}).
				Where(&models.Booking{UserID: userId}).
				Preload("Drop").
				Preload("Product").
				Order("created_at desc").
				Limit(100).
				Find(&bookings).
				Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookings, "count": len(bookings)})
		}).
		GET("/bookings/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			userId := ctx.GetUint("id")
			var booking models.Booking
			db := db.GetDb()
			if err := db.
				Model(&models.Booking{}).
				Where(&models.Booking{ID: params.ID, UserID: userId}).
				Preload("Drop").
				Preload("Drop.PickupPoint").
				Preload("Product").
				First(&booking).
				Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": booking})
		}).
		GET("/bookings/:id/pickup-qr", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			userId := ctx.GetUint("id")
			var booking models.Booking
			db := db.GetDb()
			if err := db.
				Model(&models.Booking{}).
				Where(&models.Booking{ID: params.ID, UserID: userId}).
				First(&booking).
				Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			if booking.PickupCode == nil {
				ctx.JSON(http.StatusConflict, gin.H{"error": "booking has no pickup code yet"})
				return
			}
			filename := fmt.Sprintf("pickup-%d", booking.ID)
			filepath, err := lib.SavePickupQR(*booking.PickupCode, filename)
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.FileAttachment(filepath, fmt.Sprintf("%s.jpeg", filename))
		})
	return g
}
