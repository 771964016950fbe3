package router

import (
	"net/http"
	"time"

	"parcelhop/config"
	"parcelhop/internal/deal"
	"parcelhop/internal/handler"
	"parcelhop/internal/middleware"
	"parcelhop/internal/repository"
	"parcelhop/internal/service"
	"parcelhop/internal/ws"
	"parcelhop/pkg/cloudinary"
	"parcelhop/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps are the external clients the API needs. Nil Cloud disables uploads
// and nil Push disables device pushes; Payments is required.
type Deps struct {
	Cloud    cloudinary.Client
	Payments payment.Provider
	Push     service.Pusher
}

func Setup(cfg *config.Config, db *gorm.DB, deps Deps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second)))

	// Repositories
	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	listingRepo := repository.NewListingRepository(db)
	escrowRepo := repository.NewEscrowRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	hub := ws.NewConversationHub()

	// Services
	notifSvc := service.NewNotificationService(notificationRepo, userRepo, deps.Push)
	dealSvc := deal.NewService(deal.Deps{
		Feed:     convRepo,
		Listings: listingRepo,
		Escrows:  escrowRepo,
		Ledger:   walletRepo,
		Users:    userRepo,
		Tx:       repository.NewTxManager(db),
	}, deal.Config{
		Currency:     cfg.Deal.Currency,
		Fees:         deal.PercentFee{RateBps: cfg.Deal.FeeBps, MinFee: cfg.Deal.MinFee},
		CodeHashCost: cfg.Deal.CodeHashCost,
	}).WithPublisher(hub).WithNotifier(notifSvc).WithAuditor(auditRepo)

	// Handlers
	dealHandler := handler.NewDealHandler(dealSvc)
	checkoutHandler := handler.NewCheckoutHandler(cfg, dealSvc, paymentRepo, userRepo, deps.Payments)
	paymentWebhookHandler := handler.NewPaymentWebhookHandler(dealSvc, paymentRepo, auditRepo, notifSvc, cfg)
	walletHandler := handler.NewWalletHandler(walletRepo)
	uploadHandler := handler.NewUploadHandler(deps.Cloud, cfg.Cloudinary.Folder)
	notificationHandler := handler.NewNotificationHandler(notificationRepo)
	meHandler := handler.NewMeHandler(userRepo, convRepo)

	authMw := middleware.AuthRequired(&cfg.JWT)
	codeLimit := cfg.Server.CodeRateLimit
	if codeLimit <= 0 {
		codeLimit = 10
	}
	codeRateMw := middleware.RateLimit(middleware.NewInMemoryRateLimiter(codeLimit, time.Minute))

	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/conversations", handler.UpgradeConversationWS(&cfg.JWT, hub, dealSvc))

	api := r.Group("/api/v1")
	{
		api.POST("/webhooks/payment", paymentWebhookHandler.Handle)

		conv := api.Group("/conversations/:id")
		conv.Use(authMw)
		{
			conv.GET("/messages", dealHandler.GetMessages)
			conv.POST("/messages", dealHandler.PostMessage)
			conv.GET("/deal", dealHandler.GetDeal)
			conv.POST("/offers", dealHandler.SubmitOffer)
			conv.POST("/offers/:message_id/respond", dealHandler.RespondToOffer)
			conv.POST("/checkout", checkoutHandler.Initiate)
			conv.POST("/delivery-code", codeRateMw, dealHandler.VerifyDeliveryCode)
		}

		api.POST("/uploads/handoff-photo", authMw, uploadHandler.UploadHandoffPhoto)

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("/conversations", meHandler.ListConversations)
			me.PUT("/fcm-token", meHandler.RegisterFCMToken)
			me.GET("/wallet", walletHandler.GetBalance)
			me.GET("/wallet/transactions", walletHandler.ListTransactions)
			me.GET("/notifications", notificationHandler.List)
			me.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
			me.POST("/notifications/read-all", notificationHandler.MarkAllRead)
		}
	}
	return r
}
