package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/igabaycare/platform/internal/adapters/billing/medisys"
	appointmentapi "github.com/igabaycare/platform/internal/appointment/api"
	"github.com/igabaycare/platform/internal/appointment/infrastructure"
	"github.com/igabaycare/platform/internal/booking"
	"github.com/igabaycare/platform/internal/clinic"
	"github.com/igabaycare/platform/internal/notification"
	"github.com/igabaycare/platform/internal/payment"
	"github.com/igabaycare/platform/internal/prescription"
	"github.com/igabaycare/platform/internal/scheduling"
	"github.com/igabaycare/platform/internal/shared/auth"
	"github.com/igabaycare/platform/internal/shared/config"
	"github.com/igabaycare/platform/internal/shared/database"
	"github.com/igabaycare/platform/internal/shared/events"
	"github.com/igabaycare/platform/internal/shared/metrics"
	secmiddleware "github.com/igabaycare/platform/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config        *config.Config
	DB            *database.DB
	Bus           events.EventBus
	Notifications *notification.Service
	LegacyMirror  *medisys.Adapter
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	// Initialize database (optional - skip if not available)
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		fmt.Printf("Warning: Database not available: %v\n", err)
		fmt.Println("Running in limited mode without database...")
	} else {
		app.DB = db
		defer db.Close()

		// Run migrations
		if err := database.Migrate(ctx, db.Pool); err != nil {
			fmt.Printf("Warning: Migration failed: %v\n", err)
		}
	}

	// Initialize event bus with KurrentDB (optional - skip if not available)
	bus, transport, err := events.NewEventBus(ctx, cfg.KurrentDB)
	if err != nil {
		fmt.Printf("Warning: KurrentDB not available: %v\n", err)
		fmt.Println("Running without event streaming...")
	} else {
		app.Bus = bus
		defer bus.Close()
		fmt.Printf("KurrentDB Event Bus initialized (%s)\n", transport)
	}

	// Notification dispatcher with console providers in dev; real
	// gateways are swapped in via configuration in production.
	notifSvc := notification.NewService(
		notification.NewConsoleProvider("PUSH"),
		notification.NewConsoleProvider("SMS"),
		notification.NewConsoleProvider("EMAIL"),
		notification.ServiceConfig{
			Workers:       cfg.Notifications.Workers,
			BufferSize:    cfg.Notifications.BufferSize,
			RetryAttempts: cfg.Notifications.RetryAttempts,
			RetryDelay:    time.Duration(cfg.Notifications.RetryDelaySec) * time.Second,
		},
	)
	if err := notifSvc.Start(ctx); err != nil {
		fmt.Printf("Warning: notification service failed to start: %v\n", err)
	} else {
		app.Notifications = notifSvc
		defer notifSvc.Stop()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	// API info
	r.Get("/", infoHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required for now in dev mode)
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
			r.Use(secmiddleware.NewIPRateLimiter(20, 40).Middleware)
		}

		if app.DB == nil {
			return
		}

		notifier := app.Notifications

		// Clinic directory
		clinicRepo := clinic.NewRepository(app.DB.Pool)
		clinicHandler := clinic.NewHandler(clinicRepo)
		r.Mount("/", clinicHandler.Routes())

		// Slot allocator
		appointmentRepo := infrastructure.NewPostgresRepository(app.DB.Pool)
		allocator := scheduling.NewAllocator(clinicRepo, appointmentRepo)
		schedulingHandler := scheduling.NewHandler(allocator)
		r.Mount("/scheduling", schedulingHandler.Routes())

		// Prescriptions
		prescriptionRepo := prescription.NewPostgresRepository(app.DB.Pool)
		prescriptionSvc := prescription.NewService(prescriptionRepo)
		prescriptionHandler := prescription.NewHandler(prescriptionSvc, appointmentRepo)

		// Payment settlement
		paymentRepo := payment.NewPostgresRepository(app.DB.Pool)
		registry := payment.NewRegistry()
		registry.Register(payment.NewPayMongoProvider("", os.Getenv("PAYMONGO_SECRET_KEY")))
		registry.Register(payment.NewMockProvider("mockpay"))
		paymentSvc := payment.NewService(paymentRepo, appointmentRepo, clinicRepo, registry, asNotifier(notifier), app.Bus, cfg.Payment)
		paymentHandler := payment.NewHandler(paymentSvc)
		r.Mount("/billing", paymentHandler.Routes())

		// Appointment lifecycle + booking share the /appointments router:
		// booking owns creation and cancellation, the appointment handler
		// owns the assignment state machine.
		appointmentHandler := appointmentapi.NewHandler(appointmentRepo, app.Bus, asApptNotifier(notifier), prescriptionSvc)
		bookingSvc := booking.NewService(allocator, appointmentRepo, paymentSvc, app.Bus, asBookingNotifier(notifier))
		bookingHandler := booking.NewHandler(bookingSvc)

		appointmentRoutes := appointmentHandler.Routes()
		bookingHandler.Register(appointmentRoutes)
		prescriptionHandler.Register(appointmentRoutes)
		r.Mount("/appointments", appointmentRoutes)

		// Legacy Medisys billing mirror
		if cfg.LegacyBilling.Enabled {
			mirror := medisys.New(cfg.LegacyBilling, paymentRepo, app.Bus)
			if err := mirror.Start(ctx); err != nil {
				fmt.Printf("Warning: legacy billing mirror failed to start: %v\n", err)
			} else {
				app.LegacyMirror = mirror
				fmt.Println("Legacy Medisys billing mirror started")
			}
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		fmt.Println("\nShutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if app.LegacyMirror != nil {
			if err := app.LegacyMirror.Stop(ctx); err != nil {
				fmt.Printf("Legacy mirror shutdown error: %v\n", err)
			}
		}

		if err := srv.Shutdown(ctx); err != nil {
			fmt.Printf("Server shutdown error: %v\n", err)
		}
		close(done)
	}()

	fmt.Println("============================================")
	fmt.Println("iGabay aTiCare Booking Platform")
	fmt.Println("============================================")
	fmt.Printf("Environment:    %s\n", cfg.Server.Env)
	fmt.Printf("Server:         http://localhost:%d\n", cfg.Server.Port)
	fmt.Printf("API:            http://localhost:%d/api/v1\n", cfg.Server.Port)
	fmt.Printf("Health:         http://localhost:%d/health\n", cfg.Server.Port)
	fmt.Printf("Payment:        %s (%s)\n", cfg.Payment.DefaultProvider, cfg.Payment.Currency)
	fmt.Printf("Legacy billing: %v\n", cfg.LegacyBilling.Enabled)
	fmt.Printf("KurrentDB:      %s:%d\n", cfg.KurrentDB.Host, cfg.KurrentDB.Port)
	fmt.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	fmt.Println("Server stopped")
}

// asNotifier adapts a possibly-nil notification service to the payment
// module's Notifier interface without wrapping nil in a non-nil interface.
func asNotifier(svc *notification.Service) payment.Notifier {
	if svc == nil {
		return nil
	}
	return svc
}

func asApptNotifier(svc *notification.Service) appointmentapi.Notifier {
	if svc == nil {
		return nil
	}
	return svc
}

func asBookingNotifier(svc *notification.Service) booking.Notifier {
	if svc == nil {
		return nil
	}
	return svc
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "iGabay aTiCare Booking Platform",
		"version": "0.1.0",
		"status":  "MVP Development",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		// Check database
		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		// Check KurrentDB
		if app.Bus != nil {
			if err := app.Bus.Health(); err != nil {
				checks["kurrentdb"] = "not ready: " + err.Error()
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		// Check legacy billing mirror
		if app.LegacyMirror != nil {
			if err := app.LegacyMirror.Health(r.Context()); err != nil {
				checks["legacy_billing"] = "not ready: " + err.Error()
			} else {
				checks["legacy_billing"] = "ready"
			}
		} else {
			checks["legacy_billing"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
