package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"gbs/src/db"
	"gbs/src/lib"
	"gbs/src/models"
	"gbs/src/types"
	"gbs/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"
)

func authHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/auth/register", func(ctx *gin.Context) {
			var body types.RegisterUserRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			role := body.Role
			if role == "" {
				role = "buyer"
			}
			user := models.User{
				Name:  body.Name,
				Email: body.Email,
				Role:  role,
			}
			db := db.GetDb()
			if err := db.Transaction(func(tx *gorm.DB) error {
				if err := tx.Create(&user).Error; err != nil {
					return err
				}
				return nil
			}); err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				return
			}
			go createStripeCustomer(&user)
			token, err := utils.GenerateJWT(user.Email, user.ID, user.Role)
			if err != nil {
				log.Printf("Error generating token for user %d: %s\n", user.ID, err.Error())
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"success": true, "data": gin.H{"id": user.ID, "token": token}})
		}).
		POST("/auth/login", func(ctx *gin.Context) {
			var body struct {
				Email string `json:"email" binding:"required,email"`
			}
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			var user models.User
			db := db.GetDb()
			if err := db.
				Model(&models.User{}).
				Where(&models.User{Email: body.Email}).
				First(&user).
				Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					ctx.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unknown user"})
					return
				}
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				return
			}
			token, err := utils.GenerateJWT(user.Email, user.ID, user.Role)
			if err != nil {
				log.Printf("Error generating token for user %d: %s\n", user.ID, err.Error())
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": "Error while processing request"})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"id": user.ID, "token": token}})
		})
	return g
}

func userHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		GET("/users/me", func(ctx *gin.Context) {
			userId := ctx.GetUint("id")
			var user models.User
			db := db.GetDb()
			if err := db.
				Model(&models.User{}).
				Where(&models.User{ID: userId}).
				First(&user).
				Error; err != nil {
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": user})
		}).
		PUT("/users/device-token", func(ctx *gin.Context) {
			var body struct {
				Token string `json:"token" binding:"required"`
			}
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
				return
			}
			userId := ctx.GetUint("id")
			db := db.GetDb()
			if err := db.
				Model(&models.User{}).
				Where("id = ?", userId).
				Update("device_token", body.Token).
				Error; err != nil {
				ctx.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"success": true})
		})
	return g
}

// createStripeCustomer registers the user with the payment provider. The
// customer id comes back on the customer.created webhook.
func createStripeCustomer(user *models.User) {
	sc := lib.GetStripeClient()
	_, err := sc.V1Customers.Create(context.Background(), &stripe.CustomerCreateParams{
		Name:  stripe.String(user.Name),
		Email: stripe.String(user.Email),
		Metadata: map[string]string{
			"id": strconv.FormatUint(uint64(user.ID), 10),
		},
	})
	if err != nil {
		log.Printf("[Stripe] Error creating customer for user %d: %s\n", user.ID, err.Error())
	}
}
