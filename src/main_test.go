package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gbs/src/common"
	"gbs/src/config"
	"gbs/src/core"
	"gbs/src/db"
	"gbs/src/middlewares"
	"gbs/src/models"
	"gbs/src/types"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type TestSuite struct {
	suite.Suite
	DB         *gorm.DB
	Token      *string
	AdminToken *string
}

var dbi *gorm.DB

func (s *TestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("bookabledate", bookableDateValidatorFunc)
		v.RegisterValidation("gtdate", gtfield)
		v.RegisterValidation("ltdate", ltfield)
	}

	d, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("error opening database: %s", err.Error())
	}
	inner, _ := d.DB()
	inner.SetMaxOpenConns(1)
	db.NewDB(d)
	s.DB = d
	dbi = d

	err = dbi.AutoMigrate(
		&models.User{},
		&models.SupplierList{},
		&models.Product{},
		&models.PickupPoint{},
		&models.Drop{},
		&models.Booking{},
		&models.SettlementRecord{},
		&models.TrailLog{},
		&models.JobTask{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	common.NewEngineForTest(core.NewEngine(
		d,
		nil,
		core.WithAuditSink(core.NewBrokerAuditSink(d, nil)),
	))

	user := models.User{
		Email: "someone@example.com",
		Name:  "Test User",
		Role:  "supplier",
	}
	admin := models.User{
		Email: "admin@example.com",
		Name:  "Test Admin",
		Role:  "admin",
	}
	if err := d.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		return nil
	}); err != nil {
		log.Fatalf("Could not create users due to error: %s\n", err.Error())
	}
	token := s.login(user.Email)
	s.Token = &token
	adminToken := s.login(admin.Email)
	s.AdminToken = &adminToken
}

func (s *TestSuite) login(email string) string {
	router := setupRouter()
	guestRoutes(router)
	w := httptest.NewRecorder()
	jbody := map[string]any{"email": email}
	sbody, _ := json.Marshal(&jbody)
	req, _ := http.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(string(sbody)))
	router.ServeHTTP(w, req)
	if w.Code != 200 {
		log.Fatalf("login failed with status %d", w.Code)
	}
	rbytes, _ := io.ReadAll(w.Body)
	return gjson.Get(string(rbytes), "data.token").String()
}

func (s *TestSuite) TearDownSuite() {
	inner, err := s.DB.DB()
	if err != nil {
		log.Printf("Error accessing inner db instance: %s\n", err.Error())
		return
	}
	inner.Close()
}

func authorizedRouter() *gin.Engine {
	router := setupRouter()
	apiv1 := router.Group(apiPrefix)
	apiv1.Use(middlewares.AuthMiddleware)
	dropHandlers(apiv1)
	bookingHandlers(apiv1)
	supplierHandlers(apiv1)
	pickupHandlers(apiv1)
	settlementHandlers(apiv1)
	userHandlers(apiv1)
	admin := router.Group(apiPrefix)
	admin.Use(middlewares.AuthMiddleware, middlewares.RequireRole("admin"))
	adminDropHandlers(admin)
	adminSettlementHandlers(admin)
	return router
}

func (s *TestSuite) authedRequest(token, method, url string, body any) *httptest.ResponseRecorder {
	router := authorizedRouter()
	w := httptest.NewRecorder()
	var reader io.Reader
	if body != nil {
		rbytes, _ := json.Marshal(body)
		reader = strings.NewReader(string(rbytes))
	}
	req, _ := http.NewRequest(method, url, reader)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	router.ServeHTTP(w, req)
	return w
}

func (s *TestSuite) TestPingRoute() {
	router := setupRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
}

func (s *TestSuite) TestAuthRoutes() {
	router := setupRouter()
	guestRoutes(router)

	s.Run("Should register a new user", func() {
		w := httptest.NewRecorder()
		jbody := map[string]any{
			"email": "buyer@example.com",
			"name":  "Buyer One",
		}
		sbody, _ := json.Marshal(&jbody)
		req, _ := http.NewRequest("POST", "/api/v1/auth/register", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 201, w.Code)
		rbytes, err := io.ReadAll(w.Body)
		assert.Nil(s.T(), err)
		token := gjson.Get(string(rbytes), "data.token").String()
		assert.NotEmpty(s.T(), token)
	})

	s.Run("Should reject registration without a name", func() {
		w := httptest.NewRecorder()
		jbody := map[string]any{"email": "nameless@example.com"}
		sbody, _ := json.Marshal(&jbody)
		req, _ := http.NewRequest("POST", "/api/v1/auth/register", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should reject login for unknown user", func() {
		w := httptest.NewRecorder()
		jbody := map[string]any{"email": "nobody@example.com"}
		sbody, _ := json.Marshal(&jbody)
		req, _ := http.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(string(sbody)))
		router.ServeHTTP(w, req)
		assert.Equal(s.T(), 401, w.Code)
	})
}

func (s *TestSuite) TestUnauthorizedRequest() {
	w := s.authedRequest("not-a-token", "GET", "/api/v1/drops", nil)
	assert.Equal(s.T(), 401, w.Code)
}

func (s *TestSuite) TestDropLifecycleRoutes() {
	token := *s.Token
	adminToken := *s.AdminToken

	var listId, pickupId, dropId int64

	s.Run("Should create a supplier list", func() {
		body := types.CreateSupplierListRequestBody{
			Name:                "Roastery Beans",
			MinDiscount:         5,
			MaxDiscount:         30,
			MinReservationValue: 100,
			MaxReservationValue: 10000,
			Products: []types.SupplierProductBody{
				{Name: "Single Origin 1kg", UnitPrice: 25},
			},
		}
		w := s.authedRequest(token, "POST", "/api/v1/supplier-lists", &body)
		assert.Equal(s.T(), 201, w.Code)
		rbytes, _ := io.ReadAll(w.Body)
		listId = gjson.Get(string(rbytes), "data").Int()
		assert.Greater(s.T(), listId, int64(0))
	})

	s.Run("Should create a pickup point", func() {
		body := types.CreatePickupPointRequestBody{
			Name:         "Warehouse North",
			Address:      "12 Dock Road",
			ContactEmail: "north@example.com",
		}
		w := s.authedRequest(token, "POST", "/api/v1/pickup-points", &body)
		assert.Equal(s.T(), 201, w.Code)
		rbytes, _ := io.ReadAll(w.Body)
		pickupId = gjson.Get(string(rbytes), "data.id").Int()
		assert.Greater(s.T(), pickupId, int64(0))
	})

	s.Run("Should create a drop pending approval", func() {
		start := time.Now().Add(1 * time.Hour).Format(config.TIME_PARSE_FORMAT)
		end := time.Now().Add(48 * time.Hour).Format(config.TIME_PARSE_FORMAT)
		body := map[string]any{
			"name":          "Weekend Coffee Drop",
			"pickup_point":  pickupId,
			"supplier_list": listId,
			"target_value":  5000,
			"start_time":    start,
			"end_time":      end,
		}
		w := s.authedRequest(token, "POST", "/api/v1/drops", body)
		assert.Equal(s.T(), 201, w.Code)
		rbytes, _ := io.ReadAll(w.Body)
		dropId = gjson.Get(string(rbytes), "data").Int()
		assert.Greater(s.T(), dropId, int64(0))

		var drop models.Drop
		err := dbi.First(&drop, dropId).Error
		assert.Nil(s.T(), err)
		assert.Equal(s.T(), types.DROP_PENDING_APPROVAL, drop.Status)
		assert.Equal(s.T(), 5.0, drop.CurrentDiscount)
	})

	s.Run("Should reject a drop whose target exceeds the list bounds", func() {
		start := time.Now().Add(1 * time.Hour).Format(config.TIME_PARSE_FORMAT)
		end := time.Now().Add(48 * time.Hour).Format(config.TIME_PARSE_FORMAT)
		body := map[string]any{
			"name":          "Oversized Drop",
			"pickup_point":  pickupId,
			"supplier_list": listId,
			"target_value":  50000,
			"start_time":    start,
			"end_time":      end,
		}
		w := s.authedRequest(token, "POST", "/api/v1/drops", body)
		assert.Equal(s.T(), 422, w.Code)
	})

	s.Run("Should reject approval from a non-admin", func() {
		url := fmt.Sprintf("/api/v1/admin/drops/%d/approve", dropId)
		w := s.authedRequest(token, "POST", url, nil)
		assert.Equal(s.T(), 403, w.Code)
	})

	s.Run("Should approve and activate the drop", func() {
		url := fmt.Sprintf("/api/v1/admin/drops/%d/approve", dropId)
		w := s.authedRequest(adminToken, "POST", url, nil)
		assert.Equal(s.T(), 200, w.Code)
		rbytes, _ := io.ReadAll(w.Body)
		assert.True(s.T(), gjson.Get(string(rbytes), "success").Bool())

		url = fmt.Sprintf("/api/v1/admin/drops/%d/activate", dropId)
		w = s.authedRequest(adminToken, "POST", url, nil)
		assert.Equal(s.T(), 200, w.Code)

		var drop models.Drop
		err := dbi.First(&drop, dropId).Error
		assert.Nil(s.T(), err)
		assert.Equal(s.T(), types.DROP_ACTIVE, drop.Status)
	})

	s.Run("Should reject a second approval", func() {
		url := fmt.Sprintf("/api/v1/admin/drops/%d/approve", dropId)
		w := s.authedRequest(adminToken, "POST", url, nil)
		assert.Equal(s.T(), 409, w.Code)
		rbytes, _ := io.ReadAll(w.Body)
		assert.False(s.T(), gjson.Get(string(rbytes), "success").Bool())
		assert.NotEmpty(s.T(), gjson.Get(string(rbytes), "error").String())
	})

	s.Run("Should list active drops", func() {
		w := s.authedRequest(token, "GET", "/api/v1/drops", nil)
		assert.Equal(s.T(), 200, w.Code)
		rbytes, _ := io.ReadAll(w.Body)
		count := gjson.Get(string(rbytes), "count").Int()
		assert.GreaterOrEqual(s.T(), count, int64(1))
	})

	s.Run("Should return the live snapshot", func() {
		url := fmt.Sprintf("/api/v1/drops/%d/live", dropId)
		w := s.authedRequest(token, "GET", url, nil)
		assert.Equal(s.T(), 200, w.Code)
		rbytes, _ := io.ReadAll(w.Body)
		status := gjson.Get(string(rbytes), "data.status").String()
		assert.Equal(s.T(), string(types.DROP_ACTIVE), status)
	})

	s.Run("Should report no settlement before the deadline", func() {
		url := fmt.Sprintf("/api/v1/drops/%d/settlement", dropId)
		w := s.authedRequest(token, "GET", url, nil)
		assert.Equal(s.T(), 404, w.Code)
	})

	s.Run("Should expose the audit trail", func() {
		url := fmt.Sprintf("/api/v1/drops/%d/audit", dropId)
		w := s.authedRequest(adminToken, "GET", url, nil)
		assert.Equal(s.T(), 200, w.Code)
	})
}

func (s *TestSuite) TestBookingRoutes() {
	token := *s.Token

	s.Run("Should return 404 for a booking on an unknown drop", func() {
		body := types.CreateBookingRequestBody{
			ProductID:       1,
			PaymentMethodID: "pm_test",
		}
		w := s.authedRequest(token, "POST", "/api/v1/drops/999999/bookings", &body)
		assert.Equal(s.T(), 404, w.Code)
	})

	s.Run("Should reject a booking body without a payment method", func() {
		body := map[string]any{"product": 1}
		w := s.authedRequest(token, "POST", "/api/v1/drops/1/bookings", body)
		assert.Equal(s.T(), 400, w.Code)
	})

	s.Run("Should list own bookings", func() {
		w := s.authedRequest(token, "GET", "/api/v1/bookings", nil)
		assert.Equal(s.T(), 200, w.Code)
	})

	s.Run("Should refuse a pickup QR before capture", func() {
		user := models.User{Email: "qr@example.com", Name: "QR User", Role: "buyer"}
		assert.Nil(s.T(), dbi.Create(&user).Error)
		booking := models.Booking{
			DropID:           1,
			UserID:           user.ID,
			ProductID:        1,
			OriginalPrice:    decimal.NewFromInt(25),
			AuthorizedAmount: decimal.NewFromInt(25),
			PaymentStatus:    types.PAYMENT_AUTHORIZED,
			Status:           types.BOOKING_BOOKED,
		}
		assert.Nil(s.T(), dbi.Create(&booking).Error)
		qrToken := s.login(user.Email)
		url := fmt.Sprintf("/api/v1/bookings/%d/pickup-qr", booking.ID)
		w := s.authedRequest(qrToken, "GET", url, nil)
		assert.Equal(s.T(), 409, w.Code)
	})
}

func TestRunner(t *testing.T) {
	suite.Run(t, new(TestSuite))
}
