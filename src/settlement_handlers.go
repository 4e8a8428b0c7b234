package main

import (
	"errors"
	"log"
	"net/http"

	"gbs/src/common"
	"gbs/src/db"
	"gbs/src/models"
	"gbs/src/types"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func settlementHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/drops/:id/settlement", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var record models.SettlementRecord
			db := db.GetDb()
			if err := db.
				Model(&models.SettlementRecord{}).
				Where(&models.SettlementRecord{DropID: params.ID}).
				First(&record).
				Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"error": "drop has not settled yet"})
					return
				}
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": record})
		}).
		GET("/drops/:id/audit", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var logs []models.TrailLog
			db := db.GetDb()
			if err := db.
				Model(&models.TrailLog{}).
				Where("\"group\" = ?", "drops").
				Where("payload->>'drop_id' = ?", ctx.Param("id")).
				Order("created_at asc").
				Limit(200).
				Find(&logs).
				Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": logs, "count": len(logs)})
		})
	return g
}

func adminSettlementHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/admin/drops/:id/settlement/retry", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var record models.SettlementRecord
			db := db.GetDb()
			if err := db.
				Model(&models.SettlementRecord{}).
				Where(&models.SettlementRecord{DropID: params.ID}).
				First(&record).
				Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.JSON(http.StatusNotFound, gin.H{"success": false, "error": "drop has not settled yet"})
					return
				}
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				return
			}
			report, err := common.GetEngine().SettleDrop(ctx, params.ID, record.Outcome)
			if err != nil {
				log.Printf("Could not retry settlement for drop [%d]: %s\n", params.ID, err.Error())
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"success": true, "data": report})
		})
	return g
}
