package wire

import (
	"Lattice/internal/api"
	"Lattice/internal/api/config"
	"Lattice/internal/api/handler"
	"Lattice/internal/job"
	"Lattice/internal/pkg/cron"
	"Lattice/internal/pkg/kafka"
	pkgmongo "Lattice/internal/pkg/mongo"
	"Lattice/internal/pkg/ws"
	"Lattice/internal/repository"
	"Lattice/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router       *gin.Engine
	DB           *gorm.DB
	KafkaManager *kafka.ConsumerManager
	CronMgr      *cron.Manager
	Registry     *ws.Registry
}

func BuildApplication(db *gorm.DB, mongoDB *mongo.Database, cfg *config.Config) (*ApplicationContainer, error) {
	convRepo := repository.NewConversationRepo(db)
	blockRepo := repository.NewBlockRepo(db)
	userRepo := repository.NewUserRepo(db)
	msgRepo := pkgmongo.NewMessageRepo(mongoDB)

	// 在线表与分发器按依赖注入组装，不走全局单例
	registry := ws.NewRegistry()
	dispatcher := ws.NewDispatcher(registry, convRepo)

	chatService := service.NewChatService(convRepo, blockRepo, userRepo, msgRepo, dispatcher)
	blockService := service.NewBlockService(blockRepo)

	handlers := &api.HandlersGroup{
		ChatHandler:  handler.NewChatHandler(chatService),
		BlockHandler: handler.NewBlockHandler(blockService),
		WsHandler:    handler.NewWsHandler(registry, chatService),
	}

	router := api.SetupRouter(handlers, cfg)

	kafkaMgr, err := kafka.NewConsumerManager(cfg, userRepo)
	if err != nil {
		return nil, err
	}

	cronMgr := cron.NewCronManager(job.NewPreviewCalibrationJob(convRepo, msgRepo))

	return &ApplicationContainer{
		Router:       router,
		DB:           db,
		KafkaManager: kafkaMgr,
		CronMgr:      cronMgr,
		Registry:     registry,
	}, nil
}
