package middlewares

import (
	"context"
	"errors"
	"net/http"

	"gbs/src/lib"

	"github.com/gin-gonic/gin"
)

const maintenanceKey = "system:maintenance"

// MaintenanceMiddleware rejects writes while the maintenance flag is set in
// redis. Reads stay available so drops and bookings can still be viewed.
func MaintenanceMiddleware(ctx *gin.Context) {
	if ctx.Request.Method == http.MethodGet {
		return
	}
	rd := lib.GetRedisClient()
	if rd == nil {
		return
	}
	val := rd.Get(context.Background(), maintenanceKey).Val()
	if val == "on" {
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "system is under maintenance",
		})
		return
	}
}

func SetMaintenanceMode(on bool) error {
	rd := lib.GetRedisClient()
	if rd == nil {
		return errors.New("redis is not available")
	}
	val := "off"
	if on {
		val = "on"
	}
	return rd.Set(context.Background(), maintenanceKey, val, 0).Err()
}
