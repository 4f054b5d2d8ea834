package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sahilchouksey/course-marketplace-api/config"
	"github.com/sahilchouksey/course-marketplace-api/database"
	"github.com/sahilchouksey/course-marketplace-api/handlers"
	admin_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/admin"
	auth_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/auth"
	cart_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/cart"
	comment_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/comment"
	course_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/course"
	note_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/note"
	payment_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/payment"
	university_handlers "github.com/sahilchouksey/course-marketplace-api/handlers/university"
	"github.com/sahilchouksey/course-marketplace-api/utils/metrics"
	"github.com/sahilchouksey/course-marketplace-api/utils/middleware"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Params is everything the route table needs, filled in by fx
type Params struct {
	fx.In

	Config     *config.Config
	Log        *zap.Logger
	Store      *database.GORMStore
	DB         *gorm.DB
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Auth       *middleware.AuthMiddleware
	BruteForce *middleware.BruteForceProtection

	AuthHandler       *auth_handlers.AuthHandler
	CourseHandler     *course_handlers.CourseHandler
	UniversityHandler *university_handlers.UniversityHandler
	CartHandler       *cart_handlers.CartHandler
	CommentHandler    *comment_handlers.CommentHandler
	NoteHandler       *note_handlers.NoteHandler
	PaymentHandler    *payment_handlers.PaymentHandler
	AdminHandler      *admin_handlers.AdminHandler
}

func SetupRoutes(app *fiber.App, p Params) {
	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    p.Config.App.AllowedOrigins,
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
	}, p.Log)
	app.Use(middleware.HTTPMetrics(p.Metrics, p.Log))

	// Health check and metrics (public)
	app.Get("/ping", handlers.HandleCheckHealth(p.Store))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{})))

	authRequired := p.Auth.Required()
	adminOnly := p.Auth.RequireAdmin()
	audit := func(action, resource string) fiber.Handler {
		return middleware.AdminAuditLog(p.DB, p.Log, action, resource)
	}

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes
	authGroup := api.Group("/auth")
	authGroup.Post("/register", p.AuthHandler.Register)
	authGroup.Post("/login", p.BruteForce.CheckAndRecordAttempt(), p.AuthHandler.Login)
	authGroup.Post("/refresh", p.AuthHandler.RefreshToken)
	authGroup.Post("/logout", authRequired, p.AuthHandler.Logout)
	authGroup.Post("/logout-all", authRequired, p.AuthHandler.LogoutAll)

	// Profile routes
	profile := api.Group("/profile", authRequired)
	profile.Get("/", p.AuthHandler.GetProfile)
	profile.Put("/", p.AuthHandler.UpdateProfile)
	profile.Get("/courses", p.AuthHandler.GetMyCourses)

	// University routes
	universities := api.Group("/universities")
	universities.Get("/", p.UniversityHandler.ListUniversities)
	universities.Get("/:id", p.UniversityHandler.GetUniversity)
	universities.Post("/", adminOnly, audit("university_create", "universities"), p.UniversityHandler.CreateUniversity)
	universities.Put("/:id", adminOnly, audit("university_update", "universities"), p.UniversityHandler.UpdateUniversity)
	universities.Delete("/:id", adminOnly, audit("university_delete", "universities"), p.UniversityHandler.DeleteUniversity)

	// Course routes; Optional lets admins see drafts
	courses := api.Group("/courses")
	courses.Get("/", p.Auth.Optional(), p.CourseHandler.ListCourses)
	courses.Get("/:id", p.Auth.Optional(), p.CourseHandler.GetCourse)
	courses.Post("/:id/enroll", authRequired, p.CourseHandler.EnrollFree)
	courses.Get("/:id/comments", p.CommentHandler.ListComments)
	courses.Post("/:id/comments", authRequired, p.CommentHandler.CreateComment)
	courses.Post("/", adminOnly, audit("course_create", "courses"), p.CourseHandler.CreateCourse)
	courses.Put("/:id", adminOnly, audit("course_update", "courses"), p.CourseHandler.UpdateCourse)
	courses.Delete("/:id", adminOnly, audit("course_delete", "courses"), p.CourseHandler.DeleteCourse)

	api.Delete("/comments/:id", authRequired, p.CommentHandler.DeleteComment)

	// Private notes
	notes := api.Group("/notes", authRequired)
	notes.Get("/", p.NoteHandler.ListNotes)
	notes.Post("/", p.NoteHandler.CreateNote)
	notes.Put("/:id", p.NoteHandler.UpdateNote)
	notes.Delete("/:id", p.NoteHandler.DeleteNote)

	// Cart routes
	cart := api.Group("/cart", authRequired)
	cart.Get("/", p.CartHandler.GetCart)
	cart.Post("/", p.CartHandler.AddItem)
	cart.Delete("/", p.CartHandler.ClearCart)
	cart.Delete("/:courseId", p.CartHandler.RemoveItem)

	// Payment routes. The gateway posts the callbacks without a session.
	payments := api.Group("/payments")
	payments.Post("/payu/success", p.PaymentHandler.PayUSuccess)
	payments.Post("/payu/failure", p.PaymentHandler.PayUFailure)
	payments.Post("/checkout", authRequired, p.PaymentHandler.Checkout)
	payments.Get("/", authRequired, p.PaymentHandler.ListPayments)
	payments.Get("/verify/:txnid", authRequired, p.PaymentHandler.VerifyPayment)
	payments.Get("/:txnid", authRequired, p.PaymentHandler.GetPayment)

	// Admin routes
	admin := api.Group("/admin", adminOnly)
	admin.Get("/payments", p.AdminHandler.ListPayments)
	admin.Get("/payments/stats", p.AdminHandler.GetPaymentStats)
	admin.Get("/audit-logs", p.AdminHandler.ListAuditLogs)
	admin.Get("/audit-logs/:id", p.AdminHandler.GetAuditLog)
	admin.Get("/users", p.AdminHandler.ListUsers)
	admin.Get("/users/:id", p.AdminHandler.GetUser)
	admin.Put("/users/:id", audit("user_update", "users"), p.AdminHandler.UpdateUser)
}
