package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"gbs/src/models"
	"gbs/src/types"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeProvider struct {
	mu          sync.Mutex
	authSeq     int
	authorized  map[string]decimal.Decimal
	captured    map[string]decimal.Decimal
	released    map[string]bool
	failCapture map[string]bool
	failAuth    bool
	authBarrier *sync.WaitGroup
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		authorized:  map[string]decimal.Decimal{},
		captured:    map[string]decimal.Decimal{},
		released:    map[string]bool{},
		failCapture: map[string]bool{},
	}
}

func (p *fakeProvider) Authorize(ctx context.Context, in types.AuthorizeInput) (string, error) {
	if p.authBarrier != nil {
		p.authBarrier.Done()
		p.authBarrier.Wait()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAuth {
		return "", errors.New("card declined")
	}
	p.authSeq++
	id := fmt.Sprintf("auth_%d", p.authSeq)
	p.authorized[id] = in.Amount
	return id, nil
}

func (p *fakeProvider) Capture(ctx context.Context, authorizationID string, finalAmount decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCapture[authorizationID] {
		return errors.New("capture rejected")
	}
	if prev, ok := p.captured[authorizationID]; ok {
		if !prev.Equal(finalAmount) {
			return errors.New("amount mismatch on repeated capture")
		}
		return nil
	}
	p.captured[authorizationID] = finalAmount
	return nil
}

func (p *fakeProvider) Release(ctx context.Context, authorizationID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released[authorizationID] = true
	return nil
}

func (p *fakeProvider) capturedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.captured)
}

func (p *fakeProvider) releasedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.released)
}

type EngineTestSuite struct {
	suite.Suite
	DB       *gorm.DB
	Engine   *Engine
	Provider *fakeProvider
}

func (s *EngineTestSuite) SetupTest() {
	d, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("error opening test database: %s", err.Error())
	}
	inner, err := d.DB()
	if err != nil {
		log.Fatalf("error accessing inner db instance: %s", err.Error())
	}
	inner.SetMaxOpenConns(1)

	err = d.AutoMigrate(
		&models.User{},
		&models.PickupPoint{},
		&models.SupplierList{},
		&models.Product{},
		&models.Drop{},
		&models.Booking{},
		&models.SettlementRecord{},
		&models.TrailLog{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	s.DB = d
	s.Provider = newFakeProvider()
	s.Engine = NewEngine(d, s.Provider,
		WithAuditSink(NewBrokerAuditSink(d, nil)),
		WithSettlementWorkers(4),
		WithProviderTimeout(2*time.Second),
	)
}

func (s *EngineTestSuite) createUser() *models.User {
	user := models.User{Name: "Test User", Email: fmt.Sprintf("user%d@example.com", time.Now().UnixNano())}
	s.Require().NoError(s.DB.Create(&user).Error)
	return &user
}

func (s *EngineTestSuite) createList(minDiscount, maxDiscount float64, minValue, maxValue string) *models.SupplierList {
	list := models.SupplierList{
		Name:                "Test List",
		MinDiscount:         minDiscount,
		MaxDiscount:         maxDiscount,
		MinReservationValue: dec(minValue),
		MaxReservationValue: dec(maxValue),
	}
	s.Require().NoError(s.DB.Create(&list).Error)
	return &list
}

func (s *EngineTestSuite) createProduct(listID uint, price string) *models.Product {
	product := models.Product{SupplierListID: listID, Name: "Test Product", UnitPrice: dec(price)}
	s.Require().NoError(s.DB.Create(&product).Error)
	return &product
}

func (s *EngineTestSuite) createActiveDrop(list *models.SupplierList, target string, endsIn time.Duration) *models.Drop {
	start := time.Now().UTC().Add(-time.Hour)
	drop := models.Drop{
		Name:            "Test Drop",
		SupplierListID:  list.ID,
		TargetValue:     dec(target),
		CurrentValue:    decimal.Zero,
		CurrentDiscount: list.MinDiscount,
		StartTime:       &start,
		EndTime:         time.Now().UTC().Add(endsIn),
		Status:          types.DROP_ACTIVE,
	}
	s.Require().NoError(s.DB.Create(&drop).Error)
	return &drop
}

func (s *EngineTestSuite) insertAuthorizedBooking(drop *models.Drop, userID uint, original, authorized string, discount float64, authID string) *models.Booking {
	booking := models.Booking{
		DropID:             drop.ID,
		UserID:             userID,
		OriginalPrice:      dec(original),
		AuthorizedAmount:   dec(authorized),
		DiscountPercentage: discount,
		PaymentStatus:      types.PAYMENT_AUTHORIZED,
		Status:             types.BOOKING_BOOKED,
		AuthorizationID:    authID,
	}
	s.Require().NoError(s.DB.Create(&booking).Error)
	s.Provider.mu.Lock()
	s.Provider.authorized[authID] = booking.AuthorizedAmount
	s.Provider.mu.Unlock()
	return &booking
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func (s *EngineTestSuite) TestRecomputeWorkedExample() {
	list := s.createList(30, 80, "0", "100000")
	drop := s.createActiveDrop(list, "10000", time.Hour)
	user := s.createUser()

	expected := []float64{50, 70, 80}
	amounts := []string{"4000", "4000", "3000"}
	for i, amount := range amounts {
		s.insertAuthorizedBooking(drop, user.ID, amount, amount, 30, fmt.Sprintf("wk_%d", i))
		discount, _, err := s.Engine.Recompute(context.Background(), drop.ID)
		s.Require().NoError(err)
		s.InDelta(expected[i], discount, 1e-9)
	}

	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.Equal("11000.00", fresh.CurrentValue.StringFixed(2))
	s.InDelta(80, fresh.CurrentDiscount, 1e-9)
}

func (s *EngineTestSuite) TestDiscountNeverDecreases() {
	list := s.createList(10, 60, "0", "100000")
	drop := s.createActiveDrop(list, "1000", time.Hour)
	user := s.createUser()

	last := float64(0)
	for i := 0; i < 8; i++ {
		s.insertAuthorizedBooking(drop, user.ID, "150", "150", 10, fmt.Sprintf("mono_%d", i))
		discount, _, err := s.Engine.Recompute(context.Background(), drop.ID)
		s.Require().NoError(err)
		s.GreaterOrEqual(discount, last)
		s.LessOrEqual(discount, list.MaxDiscount)
		last = discount
	}
}

func (s *EngineTestSuite) TestRecordBookingOnActiveDrop() {
	list := s.createList(20, 50, "0", "100000")
	drop := s.createActiveDrop(list, "5000", time.Hour)
	product := s.createProduct(list.ID, "100.00")
	user := s.createUser()

	booking, err := s.Engine.RecordBooking(context.Background(), drop.ID, user.ID, &types.CreateBookingRequestBody{
		ProductID:       product.ID,
		PaymentMethodID: "pm_test",
	})
	s.Require().NoError(err)
	s.Equal(types.PAYMENT_AUTHORIZED, booking.PaymentStatus)
	s.InDelta(20, booking.DiscountPercentage, 1e-9)
	s.Equal("80.00", booking.AuthorizedAmount.StringFixed(2))

	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.Equal("80.00", fresh.CurrentValue.StringFixed(2))
}

func (s *EngineTestSuite) TestRecordBookingRejectsInactiveDrop() {
	list := s.createList(20, 50, "0", "100000")
	drop := s.createActiveDrop(list, "5000", time.Hour)
	product := s.createProduct(list.ID, "100.00")
	user := s.createUser()
	s.Require().NoError(s.DB.Model(&models.Drop{}).Where("id = ?", drop.ID).
		Update("status", types.DROP_APPROVED).Error)

	_, err := s.Engine.RecordBooking(context.Background(), drop.ID, user.ID, &types.CreateBookingRequestBody{
		ProductID:       product.ID,
		PaymentMethodID: "pm_test",
	})
	s.ErrorIs(err, types.ErrDropNotActive)
}

func (s *EngineTestSuite) TestRecordBookingRejectsExpiredWindow() {
	list := s.createList(20, 50, "0", "100000")
	drop := s.createActiveDrop(list, "5000", -time.Minute)
	product := s.createProduct(list.ID, "100.00")
	user := s.createUser()

	_, err := s.Engine.RecordBooking(context.Background(), drop.ID, user.ID, &types.CreateBookingRequestBody{
		ProductID:       product.ID,
		PaymentMethodID: "pm_test",
	})
	s.ErrorIs(err, types.ErrDropNotActive)
}

func (s *EngineTestSuite) TestRecordBookingRejectsOutOfBounds() {
	list := s.createList(0, 50, "0", "100")
	drop := s.createActiveDrop(list, "5000", time.Hour)
	product := s.createProduct(list.ID, "150.00")
	user := s.createUser()

	_, err := s.Engine.RecordBooking(context.Background(), drop.ID, user.ID, &types.CreateBookingRequestBody{
		ProductID:       product.ID,
		PaymentMethodID: "pm_test",
	})
	s.ErrorIs(err, types.ErrOutOfBounds)

	var count int64
	s.DB.Model(&models.Booking{}).Where("drop_id = ?", drop.ID).Count(&count)
	s.EqualValues(0, count)
}

func (s *EngineTestSuite) TestConcurrentRecordBookingLosesNoUpdates() {
	list := s.createList(0, 80, "0", "1000000")
	drop := s.createActiveDrop(list, "100000", time.Hour)
	product := s.createProduct(list.ID, "50.00")
	user := s.createUser()

	const n = 16
	var wg sync.WaitGroup
	results := make([]*models.Booking, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Engine.RecordBooking(context.Background(), drop.ID, user.ID, &types.CreateBookingRequestBody{
				ProductID:       product.ID,
				PaymentMethodID: "pm_test",
			})
		}(i)
	}
	wg.Wait()

	total := decimal.Zero
	for i := 0; i < n; i++ {
		s.Require().NoError(errs[i])
		total = total.Add(results[i].AuthorizedAmount)
	}

	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.True(fresh.CurrentValue.Equal(total), "current_value %s != sum of authorized %s", fresh.CurrentValue, total)
}

func (s *EngineTestSuite) TestConcurrentRecordBookingHonorsReservationCap() {
	list := s.createList(0, 50, "0", "100")
	drop := s.createActiveDrop(list, "5000", time.Hour)
	product := s.createProduct(list.ID, "60.00")
	user := s.createUser()

	// Hold both callers inside Authorize so both clear the pre-authorization
	// bounds check before either one records its booking.
	var barrier sync.WaitGroup
	barrier.Add(2)
	s.Provider.authBarrier = &barrier

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Engine.RecordBooking(context.Background(), drop.ID, user.ID, &types.CreateBookingRequestBody{
				ProductID:       product.ID,
				PaymentMethodID: "pm_test",
			})
		}(i)
	}
	wg.Wait()

	rejected := 0
	for _, err := range errs {
		if err != nil {
			s.ErrorIs(err, types.ErrOutOfBounds)
			rejected++
		}
	}
	s.Equal(1, rejected)

	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.True(fresh.CurrentValue.LessThanOrEqual(list.MaxReservationValue),
		"current_value %s exceeds cap %s", fresh.CurrentValue, list.MaxReservationValue)
	s.Equal("60.00", fresh.CurrentValue.StringFixed(2))
	s.Equal(1, s.Provider.releasedCount())
}

func (s *EngineTestSuite) TestSweepCompletesFundedDrop() {
	list := s.createList(30, 80, "0", "100000")
	drop := s.createActiveDrop(list, "1000", -time.Minute)
	user := s.createUser()
	s.insertAuthorizedBooking(drop, user.ID, "600", "600", 30, "sw_1")
	s.insertAuthorizedBooking(drop, user.ID, "600", "600", 30, "sw_2")
	s.Require().NoError(s.DB.Model(&models.Drop{}).Where("id = ?", drop.ID).
		Updates(map[string]interface{}{"current_value": dec("1200"), "current_discount": 80.0}).Error)

	s.Engine.SweepDue(context.Background())

	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.Equal(types.DROP_COMPLETED, fresh.Status)
	s.Equal(2, s.Provider.capturedCount())

	var bookings []models.Booking
	s.Require().NoError(s.DB.Where("drop_id = ?", drop.ID).Find(&bookings).Error)
	for _, b := range bookings {
		s.Equal(types.PAYMENT_CAPTURED, b.PaymentStatus)
		s.Require().NotNil(b.FinalPrice)
		s.Equal("120.00", b.FinalPrice.StringFixed(2))
		s.NotNil(b.PickupCode)
	}
}

func (s *EngineTestSuite) TestSweepUnderfundsShortDrop() {
	list := s.createList(30, 80, "1000", "100000")
	drop := s.createActiveDrop(list, "10000", -time.Minute)
	user := s.createUser()
	s.insertAuthorizedBooking(drop, user.ID, "300", "300", 30, "uf_1")
	s.Require().NoError(s.DB.Model(&models.Drop{}).Where("id = ?", drop.ID).
		Update("current_value", dec("300")).Error)

	s.Engine.SweepDue(context.Background())

	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.Equal(types.DROP_UNDERFUNDED, fresh.Status)
	s.NotNil(fresh.UnderfundedNotifiedAt)
	s.Equal(0, s.Provider.capturedCount())
	s.Equal(1, s.Provider.releasedCount())

	var booking models.Booking
	s.Require().NoError(s.DB.Where("drop_id = ?", drop.ID).First(&booking).Error)
	s.Equal(types.PAYMENT_RELEASED, booking.PaymentStatus)
}

func (s *EngineTestSuite) TestSweepExpiresEmptyDrop() {
	list := s.createList(30, 80, "1000", "100000")
	drop := s.createActiveDrop(list, "10000", -time.Minute)

	s.Engine.SweepDue(context.Background())

	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.Equal(types.DROP_EXPIRED, fresh.Status)
}

func (s *EngineTestSuite) TestSweepActivatesApprovedDrop() {
	list := s.createList(30, 80, "0", "100000")
	start := time.Now().UTC().Add(-time.Minute)
	drop := models.Drop{
		Name:           "Opening Drop",
		SupplierListID: list.ID,
		TargetValue:    dec("1000"),
		StartTime:      &start,
		EndTime:        time.Now().UTC().Add(time.Hour),
		Status:         types.DROP_APPROVED,
	}
	s.Require().NoError(s.DB.Create(&drop).Error)

	s.Engine.SweepDue(context.Background())

	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.Equal(types.DROP_ACTIVE, fresh.Status)
}

func (s *EngineTestSuite) TestSettlementIdempotence() {
	list := s.createList(30, 80, "0", "100000")
	drop := s.createActiveDrop(list, "1000", -time.Minute)
	user := s.createUser()
	s.insertAuthorizedBooking(drop, user.ID, "500", "500", 30, "id_1")
	s.insertAuthorizedBooking(drop, user.ID, "700", "700", 30, "id_2")
	s.Require().NoError(s.DB.Model(&models.Drop{}).Where("id = ?", drop.ID).
		Updates(map[string]interface{}{"current_value": dec("1200"), "current_discount": 80.0}).Error)

	first, err := s.Engine.SettleDrop(context.Background(), drop.ID, types.SETTLE_CAPTURED)
	s.Require().NoError(err)
	s.Equal(2, first.CapturedCount)
	s.Equal(0, first.AlreadySettledCount)

	second, err := s.Engine.SettleDrop(context.Background(), drop.ID, types.SETTLE_CAPTURED)
	s.Require().NoError(err)
	s.Equal(0, second.CapturedCount)
	s.Equal(0, second.FailedCount)
	s.Equal(2, second.AlreadySettledCount)
	for _, r := range second.Results {
		s.True(r.AlreadySettled)
		s.Contains(r.Error, types.ErrAlreadySettled.Error())
	}

	// Nothing moved on the second pass.
	s.Equal(2, s.Provider.capturedCount())
	var record models.SettlementRecord
	s.Require().NoError(s.DB.Where("drop_id = ?", drop.ID).First(&record).Error)
	s.Equal(2, record.CapturedCount)
	s.Equal(0, record.ReleasedCount)
}

func (s *EngineTestSuite) TestSettlementReconciliation() {
	list := s.createList(30, 80, "0", "100000")
	drop := s.createActiveDrop(list, "1000", -time.Minute)
	user := s.createUser()
	// Authorized at 50% off a 100.00 item, settled at a final discount of 70%.
	s.insertAuthorizedBooking(drop, user.ID, "100.00", "50.00", 50, "rec_1")
	s.Require().NoError(s.DB.Model(&models.Drop{}).Where("id = ?", drop.ID).
		Updates(map[string]interface{}{"current_value": dec("50"), "current_discount": 70.0}).Error)

	report, err := s.Engine.SettleDrop(context.Background(), drop.ID, types.SETTLE_CAPTURED)
	s.Require().NoError(err)
	s.Equal("50.00", report.TotalAuthorized.StringFixed(2))
	s.Equal("30.00", report.TotalCharged.StringFixed(2))
	s.Equal("20.00", report.TotalSavings.StringFixed(2))
	s.True(report.TotalAuthorized.Sub(report.TotalCharged).Equal(report.TotalSavings))

	var booking models.Booking
	s.Require().NoError(s.DB.Where("drop_id = ?", drop.ID).First(&booking).Error)
	s.Require().NotNil(booking.FinalPrice)
	s.Equal("30.00", booking.FinalPrice.StringFixed(2))
}

func (s *EngineTestSuite) TestSettlementContinuesPastFailures() {
	list := s.createList(30, 80, "0", "100000")
	drop := s.createActiveDrop(list, "1000", -time.Minute)
	user := s.createUser()
	s.insertAuthorizedBooking(drop, user.ID, "400", "400", 30, "pf_1")
	s.insertAuthorizedBooking(drop, user.ID, "800", "800", 30, "pf_2")
	s.Require().NoError(s.DB.Model(&models.Drop{}).Where("id = ?", drop.ID).
		Updates(map[string]interface{}{"current_value": dec("1200"), "current_discount": 80.0}).Error)
	s.Provider.failCapture["pf_1"] = true

	report, err := s.Engine.SettleDrop(context.Background(), drop.ID, types.SETTLE_CAPTURED)
	s.Require().NoError(err)
	s.Equal(1, report.CapturedCount)
	s.Equal(1, report.FailedCount)

	// The drop still reaches its terminal state; the failed booking stays
	// authorized for the retry pass.
	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.Equal(types.DROP_COMPLETED, fresh.Status)
	var failed models.Booking
	s.Require().NoError(s.DB.Where("authorization_id = ?", "pf_1").First(&failed).Error)
	s.Equal(types.PAYMENT_AUTHORIZED, failed.PaymentStatus)

	delete(s.Provider.failCapture, "pf_1")
	retry, err := s.Engine.SettleDrop(context.Background(), drop.ID, types.SETTLE_CAPTURED)
	s.Require().NoError(err)
	s.Equal(1, retry.CapturedCount)
	s.Equal(1, retry.AlreadySettledCount)
	s.Equal(0, retry.FailedCount)

	var record models.SettlementRecord
	s.Require().NoError(s.DB.Where("drop_id = ?", drop.ID).First(&record).Error)
	s.Equal(2, record.CapturedCount)
	s.Equal(0, record.FailedCount)
}

func (s *EngineTestSuite) TestSettlementPublishesRetryOnFailures() {
	var calls []uint
	eng := NewEngine(s.DB, s.Provider,
		WithAuditSink(NewBrokerAuditSink(s.DB, nil)),
		WithRetryPublisher(func(dropID uint, outcome types.SettlementOutcome) {
			calls = append(calls, dropID)
		}),
	)

	list := s.createList(30, 80, "0", "100000")
	drop := s.createActiveDrop(list, "1000", -time.Minute)
	user := s.createUser()
	s.insertAuthorizedBooking(drop, user.ID, "600", "600", 30, "rp_1")
	s.insertAuthorizedBooking(drop, user.ID, "600", "600", 30, "rp_2")
	s.Require().NoError(s.DB.Model(&models.Drop{}).Where("id = ?", drop.ID).
		Updates(map[string]interface{}{"current_value": dec("1200"), "current_discount": 80.0}).Error)
	s.Provider.failCapture["rp_1"] = true

	report, err := eng.SettleDrop(context.Background(), drop.ID, types.SETTLE_CAPTURED)
	s.Require().NoError(err)
	s.Equal(1, report.FailedCount)
	s.Equal([]uint{drop.ID}, calls)

	// A clean retry pass publishes nothing further.
	delete(s.Provider.failCapture, "rp_1")
	retry, err := eng.SettleDrop(context.Background(), drop.ID, types.SETTLE_CAPTURED)
	s.Require().NoError(err)
	s.Equal(0, retry.FailedCount)
	s.Len(calls, 1)
}

func (s *EngineTestSuite) TestApproveAndActivateTransitions() {
	list := s.createList(30, 80, "0", "100000")
	drop := models.Drop{
		Name:           "Fresh Drop",
		SupplierListID: list.ID,
		TargetValue:    dec("1000"),
		EndTime:        time.Now().UTC().Add(time.Hour),
		Status:         types.DROP_PENDING_APPROVAL,
	}
	s.Require().NoError(s.DB.Create(&drop).Error)

	s.Require().NoError(s.Engine.Approve(context.Background(), drop.ID, "admin"))
	err := s.Engine.Approve(context.Background(), drop.ID, "admin")
	s.ErrorIs(err, types.ErrInvalidTransition)

	s.Require().NoError(s.Engine.Activate(context.Background(), drop.ID, "admin"))
	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.Equal(types.DROP_ACTIVE, fresh.Status)
	s.NotNil(fresh.StartTime)

	var trails []models.TrailLog
	s.Require().NoError(s.DB.Where("type = ?", "drop.transition").Find(&trails).Error)
	s.Len(trails, 2)
}

func (s *EngineTestSuite) TestCancelReleasesAuthorizations() {
	list := s.createList(30, 80, "0", "100000")
	drop := s.createActiveDrop(list, "10000", time.Hour)
	user := s.createUser()
	s.insertAuthorizedBooking(drop, user.ID, "250", "250", 30, "cx_1")

	s.Require().NoError(s.Engine.Cancel(context.Background(), drop.ID, "admin"))

	var fresh models.Drop
	s.Require().NoError(s.DB.First(&fresh, drop.ID).Error)
	s.Equal(types.DROP_CANCELED, fresh.Status)
	s.Equal(1, s.Provider.releasedCount())

	err := s.Engine.Cancel(context.Background(), drop.ID, "admin")
	s.ErrorIs(err, types.ErrInvalidTransition)
}

func (s *EngineTestSuite) TestMarkSettledIsIdempotent() {
	list := s.createList(30, 80, "0", "100000")
	drop := s.createActiveDrop(list, "1000", time.Hour)
	user := s.createUser()
	booking := s.insertAuthorizedBooking(drop, user.ID, "100", "70", 30, "ms_1")

	settled, err := s.Engine.MarkSettled(booking.ID, dec("40.00"), types.PAYMENT_CAPTURED)
	s.Require().NoError(err)
	s.Equal(types.PAYMENT_CAPTURED, settled.PaymentStatus)

	again, err := s.Engine.MarkSettled(booking.ID, dec("99.99"), types.PAYMENT_RELEASED)
	s.ErrorIs(err, types.ErrAlreadySettled)
	s.Equal(types.PAYMENT_CAPTURED, again.PaymentStatus)
	s.Require().NotNil(again.FinalPrice)
	s.Equal("40.00", again.FinalPrice.StringFixed(2))
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func TestInvalidTransitionErrorMatches(t *testing.T) {
	err := &types.InvalidTransitionError{From: types.DROP_COMPLETED, To: types.DROP_ACTIVE}
	assert.ErrorIs(t, err, types.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "completed")
}
