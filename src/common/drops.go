package common

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"gbs/src/db"
	"gbs/src/lib"
	awslib "gbs/src/lib/aws"
	"gbs/src/lib/mailer"
	"gbs/src/models"
	"gbs/src/types"
	"gbs/src/utils"

	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

type Plucked struct {
	Email       string
	DeviceToken string
}

func sendDropClosedNotifications(dropId uint) {
	var drop models.Drop
	var plucked []*Plucked
	db := db.GetDb()
	if err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where(&models.Drop{ID: dropId}).
			Preload("SupplierList.Supplier").
			Preload("PickupPoint").
			First(&drop).
			Error; err != nil {
			return err
		}
		var participants []uint
		if err := tx.
			Model(&models.Booking{}).
			Where("drop_id = ?", dropId).
			Select("user_id").
			Pluck("user_id", &participants).
			Error; err != nil {
			return err
		}
		if err := tx.
			Model(&models.User{}).
			Distinct("email").
			Where("id IN (?)", participants).
			Select("email", "device_token").
			Find(&plucked).
			Error; err != nil {
			return err
		}
		return nil
	}); err != nil {
		log.Printf("[DropsToCloseConsumer] Error on running database transaction: %s\n", err.Error())
		return
	}

	var emails []string
	var tokens []string
	for _, pluck := range plucked {
		emails = append(emails, pluck.Email)
		if pluck.DeviceToken != "" {
			tokens = append(tokens, pluck.DeviceToken)
		}
	}

	var body string
	switch drop.Status {
	case types.DROP_COMPLETED:
		body = fmt.Sprintf(`
			<p>Drop <b>%s</b> has closed at its final discount of <b>%.1f%%</b>. Your card has been charged the discounted price.</p>
			<p>Pick up your order at %s, %s. Your pickup code is attached to your booking.</p>
			<p>You can view your bookings <a href="%s/bookings">here</a></p>
			<p>This is a system-generated message. Do not reply to this email.</p>
			`,
			drop.Name,
			drop.CurrentDiscount,
			drop.PickupPoint.Name,
			drop.PickupPoint.Address,
			os.Getenv("APP_HOST"),
		)
	case types.DROP_UNDERFUNDED:
		body = fmt.Sprintf(`
			<p>Drop <b>%s</b> closed below its funding target. Your payment hold has been released and you have not been charged.</p>
			<p>This is a system-generated message. Do not reply to this email.</p>
			`,
			drop.Name,
		)
	default:
		body = fmt.Sprintf(`
			<p>Drop <b>%s</b> has closed. No charges were made.</p>
			<p>This is a system-generated message. Do not reply to this email.</p>
			`,
			drop.Name,
		)
	}

	senderFrom := os.Getenv("SMTP_FROM")
	input := &lib.SendMailInput{
		Subject:  fmt.Sprintf("Drop Closed: %s", drop.Name),
		From:     senderFrom,
		FromName: drop.PickupPoint.Name,
		Bcc:      emails,
		To: []string{
			drop.SupplierList.Supplier.Email,
		},
		Body: body,
		Html: true,
	}
	if err := mailer.NewMailerMessage(input); err != nil {
		log.Printf("[mailer] Error sending message: %s\n", err.Error())
	}

	if len(tokens) > 0 {
		go lib.SendPush("Drop Closed", fmt.Sprintf("Drop %s has closed", drop.Name), tokens)
	}
}

func KafkaDropsToOpenConsumer(spayload string) {
	if !gjson.Valid(spayload) {
		log.Println("[DropsToOpen]: Received invalid json body. Aborting")
		return
	}
	val := gjson.Get(spayload, "id")
	topic := gjson.Get(spayload, "topic").String()
	log.Printf("[%s] val: %f\n", topic, val.Float())
	payloadId := gjson.Get(spayload, "payloadId").String()
	dropId := uint(val.Int())
	log.Printf("dropId: %d\n", dropId)
	if err := GetEngine().Activate(context.Background(), dropId, "scheduler"); err != nil {
		log.Printf("[%s] Error activating drop %d: %s\n", topic, dropId, err.Error())
	}
	// UPDATE JOB
	go func() {
		db := db.GetDb()
		err := db.Transaction(func(tx *gorm.DB) error {
			err := tx.Where(&models.JobTask{PayloadID: payloadId}).Updates(&models.JobTask{Status: "done"}).Error
			if err != nil {
				return err
			}
			return nil
		})
		if err != nil {
			log.Printf("Error updating job status: %s\n", err.Error())
		}
	}()
}

func KafkaDropsToCloseConsumer(spayload string) {
	if !gjson.Valid(spayload) {
		log.Println("[DropsToClose]: Received invalid json body. Aborting")
		return
	}
	val := gjson.Get(spayload, "id")
	topic := gjson.Get(spayload, "topic").String()
	log.Printf("[%s] val: %f\n", topic, val.Float())
	payloadId := gjson.Get(spayload, "payloadId").String()
	dropId := uint(val.Int())
	log.Printf("dropId: %d\n", dropId)
	if err := GetEngine().EvaluateDeadline(context.Background(), dropId); err != nil {
		log.Printf("[%s] Error evaluating deadline for drop %d: %s\n", topic, dropId, err.Error())
	} else {
		go sendDropClosedNotifications(dropId)
	}
	// UPDATE JOB
	go func() {
		db := db.GetDb()
		err := db.Transaction(func(tx *gorm.DB) error {
			err := tx.Where(&models.JobTask{PayloadID: payloadId}).Updates(&models.JobTask{Status: "done"}).Error
			if err != nil {
				return err
			}
			return nil
		})
		if err != nil {
			log.Printf("Error updating job status: %s\n", err.Error())
		}
	}()
}

func KafkaSettlementsToRetryConsumer(spayload string) {
	if !gjson.Valid(spayload) {
		log.Println("[SettlementsToRetry]: Received invalid json body. Aborting")
		return
	}
	dropId := uint(gjson.Get(spayload, "id").Int())
	outcome := types.SettlementOutcome(gjson.Get(spayload, "outcome").String())
	log.Printf("dropId: %d outcome: %s\n", dropId, outcome)
	report, err := GetEngine().SettleDrop(context.Background(), dropId, outcome)
	if err != nil {
		log.Printf("[SettlementsToRetry] Error settling drop %d: %s\n", dropId, err.Error())
		return
	}
	if report.FailedCount > 0 {
		log.Printf("[SettlementsToRetry] drop %d still has %d failed payments\n", dropId, report.FailedCount)
	}
}

func DropsToOpenConsumer() {
	qname := utils.WithSuffix("DropsToOpen")
	log.Printf("%s: Listening for messages...", qname)
	c := awslib.NewSQSConsumer(qname, func(body string) {
		if !gjson.Valid(body) {
			log.Printf("[%s]: Received invalid json body. Aborting", qname)
			return
		}
		var payload types.JSONB
		err := json.Unmarshal([]byte(body), &payload)
		if err != nil {
			log.Printf("Error deserializing JSON: %s\n", err.Error())
			return
		}
		message := payload["Message"].(string)
		var msg types.JSONB
		json.Unmarshal([]byte(message), &msg)
		id := msg["id"].(float64)
		dropId := uint(id)
		log.Printf("dropId: %d\n", dropId)
		if err := GetEngine().Activate(context.Background(), dropId, "scheduler"); err != nil {
			log.Printf("[%s] Error activating drop %d: %s\n", qname, dropId, err.Error())
		}
		// UPDATE JOB
		go func() {
			db := db.GetDb()
			err := db.Transaction(func(tx *gorm.DB) error {
				payloadId := msg["payloadId"].(string)
				err := tx.Where(&models.JobTask{PayloadID: payloadId}).Updates(&models.JobTask{Status: "done"}).Error
				if err != nil {
					return err
				}
				return nil
			})
			if err != nil {
				log.Printf("Error updating job status: %s\n", err.Error())
			}
		}()
	})
	c.Listen()
}

func DropsToCloseConsumer() {
	qname := utils.WithSuffix("DropsToClose")
	log.Printf("%s: Listening for messages...", qname)
	c := awslib.NewSQSConsumer(qname, func(body string) {
		if !gjson.Valid(body) {
			log.Printf("[%s]: Received invalid json body. Aborting", qname)
			return
		}
		var payload types.JSONB
		err := json.Unmarshal([]byte(body), &payload)
		if err != nil {
			log.Printf("Error deserializing JSON: %s\n", err.Error())
			return
		}
		message := payload["Message"].(string)
		var msg types.JSONB
		json.Unmarshal([]byte(message), &msg)
		id := msg["id"].(float64)
		dropId := uint(id)
		log.Printf("dropId: %d\n", dropId)
		if err := GetEngine().EvaluateDeadline(context.Background(), dropId); err != nil {
			log.Printf("[%s] Error evaluating deadline for drop %d: %s\n", qname, dropId, err.Error())
		} else {
			go sendDropClosedNotifications(dropId)
		}
		// UPDATE JOB
		go func() {
			db := db.GetDb()
			err := db.Transaction(func(tx *gorm.DB) error {
				payloadId := msg["payloadId"].(string)
				err := tx.Where(&models.JobTask{PayloadID: payloadId}).Updates(&models.JobTask{Status: "done"}).Error
				if err != nil {
					return err
				}
				return nil
			})
			if err != nil {
				log.Printf("Error updating job status: %s\n", err.Error())
			}
		}()
	})
	c.Listen()
}

func SettlementsToRetryConsumer() {
	qname := utils.WithSuffix("SettlementsToRetry")
	log.Printf("%s: Listening for messages...", qname)
	c := awslib.NewSQSConsumer(qname, func(body string) {
		if !gjson.Valid(body) {
			log.Printf("[%s]: Received invalid json body. Aborting", qname)
			return
		}
		var payload types.JSONB
		err := json.Unmarshal([]byte(body), &payload)
		if err != nil {
			log.Printf("Error deserializing JSON: %s\n", err.Error())
			return
		}
		message := payload["Message"].(string)
		var msg types.JSONB
		json.Unmarshal([]byte(message), &msg)
		id := msg["id"].(float64)
		dropId := uint(id)
		outcome := types.SettlementOutcome(msg["outcome"].(string))
		log.Printf("dropId: %d outcome: %s\n", dropId, outcome)
		if _, err := GetEngine().SettleDrop(context.Background(), dropId, outcome); err != nil {
			log.Printf("[%s] Error settling drop %d: %s\n", qname, dropId, err.Error())
		}
	})
	c.Listen()
}
