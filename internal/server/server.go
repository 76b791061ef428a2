package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/shinyyama/farm-market-backend/internal/handler"
	"github.com/shinyyama/farm-market-backend/internal/reqctx"
	"github.com/shinyyama/farm-market-backend/internal/service"
)

type Services struct {
	Users         service.UserService
	Products      service.ProductService
	Orders        service.OrderService
	Payments      service.PaymentService
	Notifications service.NotificationService
	Wishlist      service.WishlistService
	Follows       service.FollowService
	Reviews       service.ReviewService
	Messages      service.MessageService
}

type Options struct {
	// RequireAuth rejects anonymous callers; OptionalAuth identifies them when possible.
	RequireAuth    echo.MiddlewareFunc
	OptionalAuth   echo.MiddlewareFunc
	Accounts       handler.AccountLookup
	WebSocket      echo.HandlerFunc
	AllowedOrigins []string
	Logger         *slog.Logger
	GitSHA         string
	BuildTime      string
}

type Server struct {
	e *echo.Echo
}

func New(svc Services, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OptionalAuth == nil {
		opts.OptionalAuth = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, rid string) {
			c.SetRequest(c.Request().WithContext(reqctx.WithRID(c.Request().Context(), rid)))
		},
	}))
	e.Use(requestLogger(opts.Logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		AllowOriginFunc:  originAllowed(opts.AllowedOrigins),
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"ok":         "true",
			"git_sha":    opts.GitSHA,
			"build_time": opts.BuildTime,
		})
	})

	users := handler.NewUserHandler(svc.Users, opts.Accounts)
	products := handler.NewProductHandler(svc.Products)
	orders := handler.NewOrderHandler(svc.Orders)
	payments := handler.NewPaymentHandler(svc.Payments)
	notifications := handler.NewNotificationHandler(svc.Notifications)
	wishlist := handler.NewWishlistHandler(svc.Wishlist)
	follows := handler.NewFollowHandler(svc.Follows)
	reviews := handler.NewReviewHandler(svc.Reviews)
	messages := handler.NewMessageHandler(svc.Messages)

	auth := opts.RequireAuth
	if auth == nil {
		// without a verifier every protected route is refused
		auth = func(echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				return c.JSON(http.StatusServiceUnavailable, handler.NewErrorResponse("auth_unavailable", "authentication is not configured"))
			}
		}
	}
	if opts.WebSocket != nil {
		e.GET("/ws", opts.WebSocket, auth)
	}

	api := e.Group("/api")
	api.POST("/payments/webhook", payments.Webhook)
	api.GET("/products", products.List, opts.OptionalAuth)
	api.GET("/products/:id", products.Get, opts.OptionalAuth)
	api.GET("/products/:id/reviews", reviews.ListByProduct)
	api.GET("/users/:uid/public", users.GetPublic)
	api.GET("/farmers/:uid/reviews", reviews.ListByFarmer)

	me := api.Group("", auth)
	me.GET("/me", users.GetMe)
	me.PUT("/me", users.UpsertMe)

	me.POST("/products", products.Create)
	me.PUT("/products/:id", products.Update)
	me.DELETE("/products/:id", products.Delete)
	me.POST("/products/:id/image", products.UploadImage)
	me.POST("/products/:id/approve", products.Approve)

	me.POST("/orders", orders.Place)
	me.GET("/orders", orders.List)
	me.GET("/orders/:id", orders.Get)
	me.POST("/orders/:id/confirm", orders.Confirm)
	me.POST("/orders/:id/decline", orders.Decline)
	me.POST("/orders/:id/cancel", orders.Cancel)
	me.POST("/orders/:id/complete", orders.Complete)
	me.PUT("/orders/:id/delivery", orders.UpdateDelivery)
	me.POST("/orders/:id/payment-intent", payments.CreateIntent)
	me.POST("/orders/:id/payment/confirm", payments.Confirm)
	me.POST("/orders/:id/reviews", reviews.Create)

	me.GET("/notifications", notifications.List)
	me.POST("/notifications/read-all", notifications.MarkAllRead)
	me.POST("/notifications/:id/read", notifications.MarkRead)
	me.DELETE("/notifications/:id", notifications.Delete)
	me.GET("/notifications/preferences", notifications.GetPreferences)
	me.PUT("/notifications/preferences", notifications.UpdatePreferences)

	me.GET("/wishlist", wishlist.List)
	me.POST("/wishlist", wishlist.Add)
	me.DELETE("/wishlist/:productId", wishlist.Remove)
	me.PUT("/wishlist/:productId/alert", wishlist.SetAlert)

	me.GET("/follows", follows.Following)
	me.POST("/farmers/:uid/follow", follows.Follow)
	me.DELETE("/farmers/:uid/follow", follows.Unfollow)

	me.GET("/messages", messages.Conversations)
	me.GET("/messages/:uid", messages.Conversation)
	me.POST("/messages/:uid", messages.Send)
	me.POST("/messages/:uid/read", messages.MarkRead)

	return &Server{e: e}
}

func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("rid", v.RequestID),
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("err", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

// originAllowed accepts local development origins and the configured list.
func originAllowed(allowed []string) func(origin string) (bool, error) {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(origin string) (bool, error) {
		low := strings.ToLower(origin)
		if _, ok := set[low]; ok {
			return true, nil
		}
		u, err := url.Parse(low)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return false, nil
		}
		host := u.Hostname()
		return host == "localhost" || host == "127.0.0.1", nil
	}
}
