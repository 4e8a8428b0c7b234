package common

import (
	"encoding/json"
	"log"
	"sync"

	"gbs/src/config"
	"gbs/src/core"
	"gbs/src/db"
	"gbs/src/lib"
	awslib "gbs/src/lib/aws"
	"gbs/src/types"
	"gbs/src/utils"
)

var (
	engine     *core.Engine
	engineOnce sync.Once
)

// GetEngine returns the process-wide settlement engine, wiring the Stripe
// provider, the audit sink and the redis notifier on first use.
func GetEngine() *core.Engine {
	engineOnce.Do(func() {
		d := db.GetDb()
		engine = core.NewEngine(
			d,
			lib.NewStripeProvider(),
			core.WithAuditSink(core.NewBrokerAuditSink(d, publishAudit)),
			core.WithNotifier(core.NewRedisNotifier(lib.GetRedisClient())),
			core.WithRetryPublisher(publishSettlementRetry),
		)
	})
	return engine
}

// publishSettlementRetry enqueues a drop with failed bookings on the retry
// topic so the retry consumer runs another settlement pass.
func publishSettlementRetry(dropID uint, outcome types.SettlementOutcome) {
	publishAudit("SettlementsToRetry", &types.JSONB{
		"id":      dropID,
		"outcome": string(outcome),
	})
}

// NewEngineForTest swaps the singleton. Test seam only.
func NewEngineForTest(e *core.Engine) {
	engineOnce.Do(func() {})
	engine = e
}

func publishAudit(topic string, payload *types.JSONB) {
	if config.API_ENV == "local" {
		if err := lib.KafkaProduceMessage("gbs-api", utils.WithSuffix(topic), payload); err != nil {
			log.Printf("[audit] Error producing to topic [%s]: %s\n", topic, err.Error())
		}
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[audit] Error serializing payload for topic [%s]: %s\n", topic, err.Error())
		return
	}
	if err := lib.SNSPublishMessage(topic, string(body)); err != nil {
		log.Printf("[audit] Error publishing to topic [%s]: %s\n", topic, err.Error())
	}
}

func SQSConsumers() {
	dlq := awslib.NewSQSConsumer(utils.WithSuffix("DLQ"), func(payload string) {
		log.Println("DLQ: message received")
	})
	dlq.Listen()

	go DropsToOpenConsumer()
	go DropsToCloseConsumer()
	go SettlementsToRetryConsumer()
	go EmailsToSendConsumer()
}

func SNSSubscribes() {
	dropsToOpen := awslib.NewSNSSubscriber("DropsToOpen")
	dropsToOpen.Subscribe("sqs", lib.GetQueueArn("DropsToOpen"))
	dropsToClose := awslib.NewSNSSubscriber("DropsToClose")
	dropsToClose.Subscribe("sqs", lib.GetQueueArn("DropsToClose"))
	settlementsToRetry := awslib.NewSNSSubscriber("SettlementsToRetry")
	settlementsToRetry.Subscribe("sqs", lib.GetQueueArn("SettlementsToRetry"))
}
