package api

import (
	"time"

	"tasksync/internal/api/handlers"
	"tasksync/internal/config"
	"tasksync/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// NewApp builds the fiber app with the full middleware chain:
// recover/log -> cors -> rate limit -> session -> gate -> routes.
func NewApp(deps *config.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:       "TaskSync",
		CaseSensitive: true,
		ErrorHandler:  middleware.JSONErrorHandler,
	})

	app.Use(middleware.ErrorHandler())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Config.BaseURL,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))
	if deps.Config.RateLimitMax > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        deps.Config.RateLimitMax,
			Expiration: 1 * time.Minute,
		}))
	}
	app.Use(middleware.Session(deps.Issuer, deps.Deriver, deps.Config.CookieSecure))
	app.Use(middleware.Gate(middleware.Policy))

	RegisterRoutes(app, handlers.New(deps))
	return app
}

func RegisterRoutes(app *fiber.App, h *handlers.Handler) {
	authed := handlers.Authed

	// Pages
	app.Get("/", handlers.Page("TaskSync"))
	app.Get("/login", handlers.Page("Login"))
	app.Get("/register", handlers.Page("Register"))
	app.Get("/verify", handlers.Page("Verify Email"))
	app.Get("/forgot-password", handlers.Page("Forgot Password"))
	app.Get("/user/dashboard", handlers.Page("Dashboard"))
	app.Get("/user/*", handlers.Page("TaskSync"))
	app.Get("/admin/dashboard", handlers.Page("Admin Dashboard"))
	app.Get("/admin/*", handlers.Page("TaskSync Admin"))

	api := app.Group("/api")

	// Auth
	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", h.Register)
	authRoutes.Post("/verify", h.Verify)
	authRoutes.Post("/resend-otp", h.ResendOTP)
	authRoutes.Post("/login", h.Login)
	authRoutes.Get("/google", h.GoogleLogin)
	authRoutes.Get("/google/callback", h.GoogleCallback)
	authRoutes.Post("/forgot-password", h.ForgotPassword)
	authRoutes.Post("/reset-password", h.ResetPassword)
	authRoutes.Post("/logout", authed(h.Logout))
	authRoutes.Get("/session", authed(h.Session))
	authRoutes.Get("/flash", h.Flash)

	// Project
	projectRoutes := api.Group("/projects")
	projectRoutes.Get("/", authed(h.ListProjects))
	projectRoutes.Post("/", authed(h.CreateProject))
	projectRoutes.Get("/:id", authed(h.GetProject))
	projectRoutes.Patch("/:id", authed(h.UpdateProject))
	projectRoutes.Delete("/:id", authed(h.DeleteProject))
	projectRoutes.Post("/:id/tasks", authed(h.AddProjectTask))

	// Task
	taskRoutes := api.Group("/tasks")
	taskRoutes.Get("/", authed(h.ListTasks))
	taskRoutes.Get("/:id", authed(h.GetTask))
	taskRoutes.Patch("/:id", authed(h.UpdateTask))
	taskRoutes.Patch("/:id/status", authed(h.UpdateTaskStatus))
	taskRoutes.Delete("/:id", authed(h.DeleteTask))

	// Friendship
	friendRoutes := api.Group("/friends")
	friendRoutes.Get("/", authed(h.ListFriendships))
	friendRoutes.Post("/", authed(h.CreateFriendship))
	friendRoutes.Patch("/:id/accept", authed(h.AcceptFriendship))
	friendRoutes.Delete("/:id", authed(h.DeleteFriendship))

	// User & profile
	api.Get("/users", authed(h.SearchUsers))
	api.Get("/profile", authed(h.GetProfile))
	api.Patch("/profile", authed(h.UpdateProfile))
	api.Patch("/profile/password", authed(h.ChangePassword))
	api.Get("/dashboard", authed(h.Dashboard))

	// Admin
	adminRoutes := api.Group("/admin")
	adminRoutes.Get("/dashboard", authed(h.AdminDashboard))
	adminRoutes.Get("/users", authed(h.AdminListUsers))
	adminRoutes.Patch("/users/:id/role", authed(h.AdminSetRole))

	// WebSocket
	app.Get("/ws", authed(h.WebsocketUpgrade), h.Websocket())
}
