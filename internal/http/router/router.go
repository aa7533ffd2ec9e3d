package router

import (
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/admarket-backend/internal/config"
	"github.com/ignatzorin/admarket-backend/internal/http/handlers"
	"github.com/ignatzorin/admarket-backend/internal/http/middleware"
	"github.com/ignatzorin/admarket-backend/internal/metrics"
	"github.com/ignatzorin/admarket-backend/internal/models"
)

// Handlers набор HTTP хэндлеров приложения.
type Handlers struct {
	Auth         *handlers.AuthHandler
	Profile      *handlers.ProfileHandler
	Project      *handlers.ProjectHandler
	Invitation   *handlers.InvitationHandler
	Proposal     *handlers.ProposalHandler
	Contract     *handlers.ContractHandler
	Wallet       *handlers.WalletHandler
	Invoice      *handlers.InvoiceHandler
	Conversation *handlers.ConversationHandler
	Review       *handlers.ReviewHandler
	Notification *handlers.NotificationHandler
	Portfolio    *handlers.PortfolioHandler
	Media        *handlers.MediaHandler
	Admin        *handlers.AdminHandler
	WS           *handlers.WSHandler
	Health       *handlers.HealthHandler
}

// SetupRouter собирает gin.Engine со всеми маршрутами.
func SetupRouter(cfg *config.Config, h Handlers, tokens middleware.AccessParser, rateStore limiter.Store) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxUploadSizeMB << 20
	r.Use(metrics.GinMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)
	r.GET("/metrics", metrics.Handler())

	id := middleware.UUIDValidator("id")
	auth := middleware.AuthMiddleware(tokens)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(rateStore, cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
		authGroup.POST("/logout", h.Auth.Logout)
	}

	protectedAuth := api.Group("/auth")
	protectedAuth.Use(auth)
	{
		protectedAuth.GET("/me", h.Auth.Me)
		protectedAuth.GET("/sessions", h.Auth.ListSessions)
		protectedAuth.DELETE("/sessions/:id", id, h.Auth.DeleteSession)
		protectedAuth.DELETE("/sessions", h.Auth.DeleteAllSessionsExcept)
	}

	// Stripe приходит без токена, подлинность проверяется подписью
	api.POST("/stripe/webhook", h.Wallet.StripeWebhook)

	// Публичные маршруты
	optional := middleware.OptionalAuth(tokens)
	api.GET("/ws", h.WS.Handle)
	api.GET("/projects", h.Project.ListProjects)
	api.GET("/projects/:id", id, optional, h.Project.GetProject)
	api.GET("/users/:id", id, h.Profile.GetUserProfile)
	api.GET("/users/:id/portfolio", id, h.Portfolio.ListUserPortfolio)
	api.GET("/users/:id/reviews", id, h.Review.ListUserReviews)
	api.GET("/freelancers/search", h.Profile.SearchFreelancers)
	api.GET("/portfolio/:id", id, h.Portfolio.Get)
	api.GET("/media/:id", id, optional, h.Media.Serve)
	api.POST("/invoices/tax-preview", h.Invoice.PreviewTax)

	client := middleware.RequireRole(models.RoleClient)
	freelancer := middleware.RequireRole(models.RoleFreelancer)

	protected := api.Group("/")
	protected.Use(auth)
	{
		protected.GET("/profile", h.Profile.GetMe)
		protected.PUT("/profile", h.Profile.UpdateMe)

		// Проекты
		protected.POST("/projects", client, h.Project.CreateProject)
		protected.GET("/projects/my", h.Project.ListMyProjects)
		protected.PUT("/projects/:id", id, h.Project.UpdateProject)
		protected.DELETE("/projects/:id", id, h.Project.DeleteProject)
		protected.POST("/projects/:id/publish", id, h.Project.PublishProject)
		protected.POST("/projects/:id/cancel", id, h.Project.CancelProject)

		// Приглашения
		protected.POST("/projects/:id/invitations", id, client, h.Invitation.Invite)
		protected.GET("/projects/:id/invitations", id, h.Invitation.ListForProject)
		protected.GET("/invitations", freelancer, h.Invitation.ListReceived)
		protected.POST("/invitations/:id/reject", id, freelancer, h.Invitation.Reject)
		protected.POST("/invitations/:id/offer", id, freelancer, h.Invitation.SubmitOffer)

		// Предложения и переговоры
		protected.POST("/projects/:id/proposals", id, freelancer, h.Proposal.Submit)
		protected.GET("/projects/:id/proposals", id, h.Proposal.ListForProject)
		protected.GET("/proposals/my", freelancer, h.Proposal.ListMine)
		protected.GET("/proposals/:id", id, h.Proposal.Get)
		protected.POST("/proposals/:id/counter", id, h.Proposal.Counter)
		protected.POST("/proposals/:id/accept", id, h.Proposal.Accept)
		protected.POST("/proposals/:id/reject", id, client, h.Proposal.Reject)
		protected.POST("/proposals/:id/withdraw", id, freelancer, h.Proposal.Withdraw)

		// Контракты и этапы
		protected.GET("/contracts", h.Contract.ListMine)
		protected.GET("/contracts/:id", id, h.Contract.Get)
		protected.POST("/contracts/:id/cancel", id, h.Contract.Cancel)
		protected.POST("/contracts/:id/reviews", id, h.Review.Create)
		protected.GET("/contracts/:id/reviews", id, h.Review.ListForContract)
		protected.POST("/milestones/:id/fund", id, h.Contract.Fund)
		protected.POST("/milestones/:id/submit", id, h.Contract.Submit)
		protected.POST("/milestones/:id/request-changes", id, h.Contract.RequestChanges)
		protected.POST("/milestones/:id/approve", id, h.Contract.Approve)
		protected.POST("/milestones/:id/release", id, h.Contract.Release)

		// Кошелёк и выплаты
		protected.GET("/wallet", h.Wallet.GetWallet)
		protected.POST("/wallet/deposits", client, h.Wallet.CreateDeposit)
		protected.POST("/wallet/withdrawals", freelancer, h.Wallet.Withdraw)
		protected.GET("/wallet/transactions", h.Wallet.ListTransactions)
		protected.POST("/stripe/connect", freelancer, h.Wallet.ConnectOnboarding)

		// Счета
		protected.GET("/invoices", h.Invoice.List)
		protected.GET("/invoices/:id", id, h.Invoice.Get)
		protected.POST("/invoices/:id/approve", id, h.Invoice.Approve)
		protected.POST("/invoices/:id/cancel", id, h.Invoice.Cancel)

		// Переписка
		protected.POST("/conversations", h.Conversation.Start)
		protected.GET("/conversations/my", h.Conversation.ListMine)
		protected.GET("/conversations/unread/count", h.Conversation.CountUnread)
		protected.GET("/conversations/:id/messages", id, h.Conversation.ListMessages)
		protected.POST("/conversations/:id/messages", id, h.Conversation.SendMessage)
		protected.POST("/conversations/:id/read", id, h.Conversation.MarkRead)

		// Уведомления
		protected.GET("/notifications", h.Notification.ListNotifications)
		protected.GET("/notifications/unread/count", h.Notification.CountUnread)
		protected.PUT("/notifications/read-all", h.Notification.MarkAllAsRead)
		protected.GET("/notifications/:id", id, h.Notification.GetNotification)
		protected.PUT("/notifications/:id/read", id, h.Notification.MarkAsRead)
		protected.DELETE("/notifications/:id", id, h.Notification.DeleteNotification)

		// Портфолио и медиа
		protected.GET("/portfolio", h.Portfolio.ListMine)
		protected.POST("/portfolio", freelancer, h.Portfolio.Create)
		protected.PUT("/portfolio/:id", id, h.Portfolio.Update)
		protected.DELETE("/portfolio/:id", id, h.Portfolio.Delete)
		protected.POST("/media", h.Media.Upload)
		protected.DELETE("/media/:id", id, h.Media.Delete)
	}

	admin := api.Group("/admin")
	admin.Use(auth, middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/stats", h.Admin.Stats)
		admin.GET("/users", h.Admin.ListUsers)
		admin.PUT("/users/:id/active", id, h.Admin.SetActive)
		admin.POST("/users/:id/credit", id, h.Admin.ManualCredit)
		admin.GET("/transactions", h.Admin.ListTransactions)
		admin.GET("/invoices", h.Admin.ListInvoices)
	}

	return r
}
