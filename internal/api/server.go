package api

import (
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/yizeng/gab/gin/gorm/chat-sse/docs"
	v1 "github.com/yizeng/gab/gin/gorm/chat-sse/internal/api/handler/v1"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/api/middleware"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/changefeed"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/config"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/repository"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/repository/dao"
	"github.com/yizeng/gab/gin/gorm/chat-sse/internal/service"
)

type Server struct {
	Config *config.AppConfig
	Router *gin.Engine
}

func NewServer(conf *config.AppConfig, db *gorm.DB) *Server {
	gin.SetMode(conf.Gin.Mode)
	engine := gin.New()

	s := &Server{
		Config: conf,
		Router: engine,
	}

	s.MountMiddlewares()

	// One change feed for the whole process: the message repository
	// publishes into it, every open stream subscribes to it.
	feed := changefeed.NewBroker(conf.Chat.SubscriberBuffer)

	authHandler := s.initAuthHandler(db)
	userHandler := s.initUserHandler(db)
	chatHandler := s.initChatHandler(db, feed)
	s.MountHandlers(authHandler, userHandler, chatHandler)

	return s
}

func (s *Server) initAuthHandler(db *gorm.DB) *v1.AuthHandler {
	userDAO := dao.NewUserDAO(db)
	repo := repository.NewUserRepository(userDAO)
	svc := service.NewAuthService(repo)
	handler := v1.NewAuthHandler(s.Config.API, svc)

	return handler
}

func (s *Server) initUserHandler(db *gorm.DB) *v1.UserHandler {
	userDAO := dao.NewUserDAO(db)
	repo := repository.NewUserRepository(userDAO)
	svc := service.NewUserService(repo)
	handler := v1.NewUserHandler(svc)

	return handler
}

func (s *Server) initChatHandler(db *gorm.DB, feed changefeed.Feed) *v1.ChatHandler {
	messageDAO := dao.NewMessageDAO(db)
	repo := repository.NewMessageRepository(messageDAO, feed)
	svc := service.NewChatService(repo, s.Config.Chat.HistoryLimit)
	uSvc := service.NewUserService(repository.NewUserRepository(dao.NewUserDAO(db)))
	handler := v1.NewChatHandler(svc, uSvc, feed)

	return handler
}

func (s *Server) MountMiddlewares() {
	// Logger and Recovery are needed unless we use gin.Default().
	s.Router.Use(gin.Logger())
	s.Router.Use(gin.Recovery())
	s.Router.Use(requestid.New())
	s.Router.Use(middleware.ConfigCORS(s.Config.API.AllowedCORSDomains))
}

func (s *Server) MountHandlers(authHandler *v1.AuthHandler, userHandler *v1.UserHandler, chatHandler *v1.ChatHandler) {
	const basePath = "/api/v1"

	auth := s.Router.Group(basePath)
	{
		auth.POST("/auth/signup", authHandler.HandleSignup)
		auth.POST("/auth/login", authHandler.HandleLogin)
	}

	users := s.Router.Group(basePath, middleware.NewAuthenticator(s.Config.API.JWTSigningKey).VerifyJWT())
	{
		users.GET("/users/:userID", userHandler.HandleGetUser)
	}

	chat := s.Router.Group(basePath+"/chat", middleware.NewAuthenticator(s.Config.API.JWTSigningKey).VerifyJWT())
	{
		chat.POST("/send", chatHandler.HandleSendMessage)
		chat.GET("/:projectID", chatHandler.HandleStreamMessages)
	}

	s.Router.GET("/", v1.HandleHealthcheck)

	// Setup Swagger UI.
	docs.SwaggerInfo.Host = s.Config.API.BaseURL
	docs.SwaggerInfo.BasePath = basePath
	docs.SwaggerInfo.Title = "API for gin/chat-sse"
	docs.SwaggerInfo.Description = "Project-scoped live chat over server-sent events."
	docs.SwaggerInfo.Version = "1.0"
	s.Router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
}
