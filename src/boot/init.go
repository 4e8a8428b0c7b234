package boot

import (
	"context"
	"log"
	"os"
	"time"

	"gbs/src/common"
	"gbs/src/config"
	"gbs/src/db"
	"gbs/src/lib"
	"gbs/src/models"
	"gbs/src/utils"

	"github.com/go-co-op/gocron/v2"
	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
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

	return db
}

func InitBroker() {
	go RecoverQueuedJobs()
	go UpdateExpiredJobs()
	if config.API_ENV == "local" {
		emailQueue := os.Getenv("EMAIL_QUEUE")
		go lib.KafkaCreateTopics(
			utils.WithSuffix("DropsToOpen"),
			utils.WithSuffix("DropsToClose"),
			utils.WithSuffix("SettlementsToRetry"),
			utils.WithSuffix("drop-transitions"),
			utils.WithSuffix("drop-settlements"),
			utils.WithSuffix(emailQueue),
		)
		lib.KafkaSubscribe(utils.WithSuffix("DropsToOpen"), "gbs-api", common.KafkaDropsToOpenConsumer)
		lib.KafkaSubscribe(utils.WithSuffix("DropsToClose"), "gbs-api", common.KafkaDropsToCloseConsumer)
		lib.KafkaSubscribe(utils.WithSuffix("SettlementsToRetry"), "gbs-api", common.KafkaSettlementsToRetryConsumer)
		lib.KafkaSubscribe(utils.WithSuffix(emailQueue), "gbs-mailer", common.KafkaEmailsToSendConsumer)
		return
	}
	go common.SNSSubscribes()
	go common.SQSConsumers()
}

// InitScheduler starts the in-process scheduler and registers the deadline
// sweep. The sweep backstops the per-drop scheduled jobs, so a lost broker
// message only delays a transition by one interval.
func InitScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	engine := common.GetEngine()
	id, err := lib.CreateCronJob(func() {
		engine.SweepDue(context.Background())
	}, config.SWEEP_INTERVAL_SECONDS*time.Second)
	if err != nil {
		log.Printf("Error registering sweep job: %s\n", err.Error())
		return
	}
	log.Printf("Registered sweep job: %s\n", *id)
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	err = sched.Shutdown()
	if err != nil {
		log.Println("An error has occurred while stopping Scheduler. Check logs for info")
		return
	}
}

// RecoverQueuedJobs re-arms pending one-time jobs after a restart. Jobs whose
// run time has already passed are left for UpdateExpiredJobs and the sweep.
func RecoverQueuedJobs() error {
	sched, err := lib.GetScheduler()
	if err != nil {
		return err
	}
	db := db.GetDb()
	ss := db.Session(&gorm.Session{PrepareStmt: true})
	var jobTasks []models.JobTask
	today := time.Now()
	in1m := today.Add(1 * time.Minute)
	in3months := today.Add((24 * 30 * 3) * time.Hour)
	err = ss.
		Model(&models.JobTask{}).Select("id", "payload", "topic", "runs_at").
		Where(&models.JobTask{Status: "pending", JobType: "OneTimeJobStartDateTime"}).
		Where("runs_at BETWEEN ? AND ?", in1m, in3months).
		Order("runs_at asc").
		Limit(100).
		Find(&jobTasks).
		Error
	if err != nil {
		log.Printf("Error retrieving jobs: %s\n", err.Error())
		return err
	}
	log.Printf("Found %d pending jobs", len(jobTasks))
	for _, jobTask := range jobTasks {
		log.Printf("Queueing: %s\n", jobTask.ID.String())
		jobDef := gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(jobTask.RunsAt))
		jt := gocron.NewTask(func(task models.JobTask) {
			log.Println("Running recovered task")
			err := lib.KafkaProduceMessage("gbs-api", task.Topic, &task.Payload)
			if err != nil {
				log.Printf("Error on producing message: %s\n", err.Error())
				return
			}
		}, jobTask)
		job, err := sched.NewJob(
			jobDef,
			jt,
		)
		if err != nil {
			log.Printf("Failed to schedule job [%s]. Skipping: %s\n", jobTask.ID.String(), err.Error())
			continue
		}
		log.Printf("Added job to scheduler: name=%s id=%s job=%s\n", jobTask.Name, jobTask.ID.String(), job.ID().String())
	}

	return nil
}

func UpdateExpiredJobs() {
	db := db.GetDb()
	err := db.
		Transaction(func(tx *gorm.DB) error {
			err := tx.Model(&models.JobTask{}).
				Where("status", "pending").
				Where("runs_at < ?", time.Now()).
				Update("status", "expired").Error
			if err != nil {
				return err
			}
			return nil
		})
	if err != nil {
		log.Printf("Error while processing expired jobs: %s\n", err.Error())
	}
}
