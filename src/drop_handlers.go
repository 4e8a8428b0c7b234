package main

import (
	"errors"
	"log"
	"net/http"
	"time"

	"gbs/src/common"
	"gbs/src/db"
	"gbs/src/lib"
	"gbs/src/middlewares"
	"gbs/src/models"
	"gbs/src/types"
	"gbs/src/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func dropHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/drops", func(ctx *gin.Context) {
			var body types.CreateDropRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			dropId, err := utils.CreateNewDrop(&body, userId)
			if err != nil {
				if errors.Is(err, types.ErrOutOfBounds) {
					ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
					return
				}
				log.Printf("Could not create drop: %s\n", err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"success": true, "data": dropId})
		}).
		GET("/drops", func(ctx *gin.Context) {
			var filters types.DropsQueryFilters
			if err := ctx.ShouldBindQuery(&filters); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			var drops []models.Drop
			db := db.GetDb()
			q := db.Model(&models.Drop{})
			if filters.Status != "" {
				q = q.Where("status", filters.Status)
			} else {
				q = q.Where("status", types.DROP_ACTIVE)
			}
			if filters.PickupPoint > 0 {
				q = q.Where("pickup_point_id = ?", filters.PickupPoint)
			}
			if err := q.
				Order("end_time asc").
				Limit(50).
				Find(&drops).
				Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": drops, "count": len(drops)})
		}).
		GET("/drops/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var drop models.Drop
			db := db.GetDb()
			if err := db.
				Model(&models.Drop{}).
				Where(&models.Drop{ID: params.ID}).
				Preload("SupplierList").
				Preload("SupplierList.Products").
				Preload("PickupPoint").
				First(&drop).
				Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": drop})
		}).
		GET("/drops/:id/live", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			if snap, err := lib.GetDropSnapshot(params.ID); err == nil {
				ctx.JSON(http.StatusOK, gin.H{"data": snap})
				return
			}
			var drop models.Drop
			db := db.GetDb()
			if err := db.
				Model(&models.Drop{}).
				Where(&models.Drop{ID: params.ID}).
				First(&drop).
				Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			value, _ := drop.CurrentValue.Float64()
			snap := &types.DropChange{
				ID:              drop.ID,
				CurrentDiscount: drop.CurrentDiscount,
				CurrentValue:    value,
				Status:          drop.Status,
				UpdatedAt:       drop.UpdatedAt,
				PickupPointID:   drop.PickupPointID,
			}
			go lib.CacheDropSnapshot(snap)
			ctx.JSON(http.StatusOK, gin.H{"data": snap})
		}).
		POST("/drops/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			db := db.GetDb()
			userId := ctx.GetUint("id")
			var drop models.Drop
			if err := db.
				Model(&models.Drop{}).
				Where(&models.Drop{ID: params.ID, CreatedBy: userId}).
				First(&drop).
				Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"success": false, "error": "record not found"})
					return
				}
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				return
			}
			initiator := ctx.GetString("email")
			if err := common.GetEngine().Cancel(ctx, params.ID, initiator); err != nil {
				if errors.Is(err, types.ErrInvalidTransition) {
					ctx.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
					return
				}
				log.Printf("Could not cancel drop [%d]: %s\n", params.ID, err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"success": true})
		}).
		GET("/drops/:id/bookings", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var bookings []models.Booking
			db := db.GetDb()
			if err := db.
				Model(&models.Booking{}).
				Where(&models.Booking{DropID: params.ID}).
				Preload("Product").
				Order("created_at asc").
				Find(&bookings).
				Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": bookings, "count": len(bookings)})
		})
	return g
}

func adminDropHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/admin/drops/pending", func(ctx *gin.Context) {
			var drops []models.Drop
			db := db.GetDb()
			if err := db.
				Model(&models.Drop{}).
				Where("status", types.DROP_PENDING_APPROVAL).
				Order("created_at asc").
				Limit(100).
				Find(&drops).
				Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": drops, "count": len(drops)})
		}).
		POST("/admin/drops/:id/approve", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			initiator := ctx.GetString("email")
			if err := common.GetEngine().Approve(ctx, params.ID, initiator); err != nil {
				if errors.Is(err, types.ErrInvalidTransition) || errors.Is(err, types.ErrConcurrencyConflict) {
					ctx.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
					return
				}
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"success": true})
		}).
		POST("/admin/drops/:id/activate", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			initiator := ctx.GetString("email")
			if err := common.GetEngine().Activate(ctx, params.ID, initiator); err != nil {
				if errors.Is(err, types.ErrInvalidTransition) || errors.Is(err, types.ErrConcurrencyConflict) {
					ctx.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
					return
				}
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"success": true})
		}).
		POST("/admin/drops/:id/evaluate", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			if err := common.GetEngine().EvaluateDeadline(ctx, params.ID); err != nil {
				if errors.Is(err, types.ErrDropNotActive) {
					ctx.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
					return
				}
				log.Printf("Could not evaluate drop [%d]: %s\n", params.ID, err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"success": true})
		}).
		GET("/admin/drops/due", func(ctx *gin.Context) {
			drops, err := sweepWindow(db.GetDb())
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": drops, "count": len(drops)})
		}).
		POST("/admin/maintenance", func(ctx *gin.Context) {
			var body struct {
				On *bool `json:"on" binding:"required"`
			}
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			if err := middlewares.SetMaintenanceMode(*body.On); err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"success": true})
		})
	return g
}

// sweepWindow lists what the next sweep would touch, for operators.
func sweepWindow(db *gorm.DB) ([]models.Drop, error) {
	var drops []models.Drop
	now := time.Now()
	err := db.
		Model(&models.Drop{}).
		Where(db.
			Where("status", types.DROP_APPROVED).
			Where("start_time <= ?", now),
		).
		Or(db.
			Where("status", types.DROP_ACTIVE).
			Where("end_time <= ?", now),
		).
		Order("end_time asc").
		Find(&drops).
		Error
	return drops, err
}
