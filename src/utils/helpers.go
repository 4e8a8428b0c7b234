package utils

import (
	"fmt"
	"log"
	"os"
	"time"

	"gbs/src/config"
	"gbs/src/db"
	"gbs/src/models"
	"gbs/src/types"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// WithSuffix namespaces a queue or topic per deployment environment so local,
// staging and production never share a channel.
func WithSuffix(name string) string {
	env := config.API_ENV
	if env == "" {
		return name
	}
	return fmt.Sprintf("%s_%s", name, env)
}

func GenerateJWT(email string, userId uint, role string) (string, error) {
	expiresAt := time.Now().Add(24 * time.Hour)
	claims := &types.Claims{
		Username: email,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(userId),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(os.Getenv("JWT_SECRET_KEY")))
}

// CreateNewDrop validates the requested window and target against the
// supplier list's bounds, creates the drop in the approval queue and arms the
// one-shot open/close schedules for it. The minute sweep remains the safety
// net if a schedule is lost.
func CreateNewDrop(params *types.CreateDropRequestBody, creatorId uint) (uint, error) {
	startTime, err := time.Parse(config.TIME_PARSE_FORMAT, params.StartTime)
	if err != nil {
		log.Printf("Error parsing start_time: %s\n", err.Error())
		return 0, err
	}
	endTime, err := time.Parse(config.TIME_PARSE_FORMAT, params.EndTime)
	if err != nil {
		log.Printf("Error parsing end_time: %s\n", err.Error())
		return 0, err
	}

	var dropId uint
	db := db.GetDb()
	err = db.Transaction(func(tx *gorm.DB) error {
		var list models.SupplierList
		if err := tx.First(&list, params.SupplierListID).Error; err != nil {
			return err
		}
		var pickup models.PickupPoint
		if err := tx.First(&pickup, params.PickupPointID).Error; err != nil {
			return err
		}
		target := decimal.NewFromFloat(params.TargetValue)
		if list.MaxReservationValue.IsPositive() && target.GreaterThan(list.MaxReservationValue) {
			return types.ErrOutOfBounds
		}

		drop := models.Drop{
			Name:            params.Name,
			PickupPointID:   pickup.ID,
			SupplierListID:  list.ID,
			TargetValue:     target,
			CurrentValue:    decimal.Zero,
			CurrentDiscount: list.MinDiscount,
			StartTime:       &startTime,
			EndTime:         endTime,
			Status:          types.DROP_PENDING_APPROVAL,
			CreatedBy:       creatorId,
		}
		if err := tx.Create(&drop).Error; err != nil {
			return err
		}
		dropId = drop.ID
		return nil
	})
	if err != nil {
		return 0, err
	}

	go scheduleDropJob(dropId, "DropsToOpen", startTime.UTC())
	go scheduleDropJob(dropId, "DropsToClose", endTime.UTC())

	return dropId, nil
}

func scheduleDropJob(dropId uint, topic string, runsAt time.Time) {
	payloadId := uuid.New().String()
	jobTask := models.JobTask{
		Name:      fmt.Sprintf("%s_%d", topic, dropId),
		JobType:   "OneTimeJobStartDateTime",
		RunsAt:    runsAt,
		PayloadID: payloadId,
		Payload: types.JSONB{
			"id":        dropId,
			"topic":     topic,
			"payloadId": payloadId,
		},
		Source:     "drops",
		SourceType: "drop",
		Topic:      WithSuffix(topic),
	}
	if _, err := jobTask.CreateAndEnqueueJobTask(jobTask); err != nil {
		log.Printf("Error creating job for Drop: id=%d error=%s\n", dropId, err.Error())
	}
}

// CreateSupplierList stores a supplier's product list with its discount and
// reservation-value bounds in one transaction.
func CreateSupplierList(params *types.CreateSupplierListRequestBody, supplierId uint) (uint, error) {
	var listId uint
	db := db.GetDb()
	err := db.Transaction(func(tx *gorm.DB) error {
		list := models.SupplierList{
			Name:                params.Name,
			SupplierID:          supplierId,
			MinDiscount:         params.MinDiscount,
			MaxDiscount:         params.MaxDiscount,
			MinReservationValue: decimal.NewFromFloat(params.MinReservationValue),
			MaxReservationValue: decimal.NewFromFloat(params.MaxReservationValue),
		}
		if err := tx.Create(&list).Error; err != nil {
			return err
		}
		for _, p := range params.Products {
			product := models.Product{
				SupplierListID: list.ID,
				Name:           p.Name,
				UnitPrice:      decimal.NewFromFloat(p.UnitPrice),
			}
			if err := tx.Create(&product).Error; err != nil {
				return err
			}
		}
		listId = list.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return listId, nil
}

// CreatePickupPoint registers a fulfillment location with a URL-safe slug.
func CreatePickupPoint(params *types.CreatePickupPointRequestBody, ownerId uint) (*models.PickupPoint, error) {
	pickup := models.PickupPoint{
		Name:         params.Name,
		Slug:         slug.Make(params.Name),
		Address:      params.Address,
		ContactEmail: params.ContactEmail,
		OwnerID:      ownerId,
	}
	db := db.GetDb()
	if err := db.Create(&pickup).Error; err != nil {
		return nil, err
	}
	return &pickup, nil
}
