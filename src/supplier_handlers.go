package main

import (
	"net/http"

	"gbs/src/db"
	"gbs/src/models"
	"gbs/src/types"
	"gbs/src/utils"

	"github.com/gin-gonic/gin"
)

func supplierHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/supplier-lists", func(ctx *gin.Context) {
			var body types.CreateSupplierListRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			listId, err := utils.CreateSupplierList(&body, userId)
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"success": true, "data": listId})
		}).
		GET("/supplier-lists", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			var lists []models.SupplierList
			db := db.GetDb()
			if err := db.
				Model(&models.SupplierList{}).
				Where(&models.SupplierList{SupplierID: userId}).
				Preload("Products").
				Order("created_at desc").
				Find(&lists).
				Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": lists, "count": len(lists)})
		}).
		GET("/supplier-lists/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var list models.SupplierList
			db := db.GetDb()
			if err := db.
				Model(&models.SupplierList{}).
				Where(&models.SupplierList{ID: params.ID}).
				Preload("Products").
				First(&list).
				Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": list})
		})
	return g
}

func pickupHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/pickup-points", func(ctx *gin.Context) {
			var body types.CreatePickupPointRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			point, err := utils.CreatePickupPoint(&body, userId)
			if err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"success": true, "data": point})
		}).
		GET("/pickup-points", func(ctx *gin.Context) {
			var points []models.PickupPoint
			db := db.GetDb()
			if err := db.
				Model(&models.PickupPoint{}).
				Order("name asc").
				Limit(100).
				Find(&points).
				Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": points, "count": len(points)})
		}).
		GET("/pickup-points/:id/drops", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var drops []models.Drop
			db := db.GetDb()
			if err := db.
				Model(&models.Drop{}).
				Where(&models.Drop{PickupPointID: params.ID, Status: types.DROP_ACTIVE}).
				Order("end_time asc").
				Find(&drops).
				Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": drops, "count": len(drops)})
		})
	return g
}
