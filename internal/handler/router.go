package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fueldelivery/internal/blob"
	"fueldelivery/internal/config"
	"fueldelivery/internal/logger"
	"fueldelivery/internal/mw"
	"fueldelivery/internal/realtime"
)

type Deps struct {
	Config   *config.Config
	Log      logger.ILogger
	Users    Users
	Orders   Orders
	Profiles Profiles
	Avatars  *blob.AvatarStore
	Hub      *realtime.Hub
	DB       Pinger
	Now      func() time.Time
}

func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Get("/health", HealthHandler(d.DB))
	r.Post("/api/auth/signup", SignUpHandler(d.Users, d.Config, d.Now))
	r.Post("/api/auth/signin", SignInHandler(d.Users, d.Config, d.Now))
	r.Get("/avatars/{name}", ServeAvatarHandler(d.Avatars, d.Now))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(d.Config.JWTSecret, d.Now))

		r.Post("/api/auth/refresh", RefreshHandler(d.Users, d.Config, d.Now))
		r.Post("/api/auth/signout", SignOutHandler())

		r.Get("/api/orders", ListOrdersHandler(d.Orders, d.Log))
		r.Post("/api/orders", CreateOrderHandler(d.Orders, d.Config.Price(), d.Log))
		r.Get("/api/orders/active", ActiveOrderHandler(d.Orders, d.Log))
		r.Delete("/api/orders/{id}", DeleteOrderHandler(d.Orders, d.Log))
		r.Post("/api/orders/{id}/complete", CompleteOrderHandler(d.Orders, d.Log, d.Now))
		r.With(mw.AdminOnly).Post("/api/orders/{id}/approve", ApproveOrderHandler(d.Orders, d.Log, d.Now))

		r.Get("/api/profile", GetProfileHandler(d.Profiles, d.Avatars, d.Log, d.Now))
		r.Post("/api/profile", CreateProfileHandler(d.Profiles, d.Log))
		r.Put("/api/profile", UpdateProfileHandler(d.Profiles, d.Log))
		r.Delete("/api/profile", DeleteProfileHandler(d.Profiles, d.Log))
		r.Post("/api/profile/avatar", UploadAvatarHandler(d.Profiles, d.Avatars, d.Log, d.Now))

		r.Get("/api/realtime/orders", RealtimeHandler(d.Hub))
	})

	return r
}
