package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/dealroom-backend/api/controllers"
	"github.com/angelmondragon/dealroom-backend/api/middleware"
	"github.com/angelmondragon/dealroom-backend/internal/audit"
	"github.com/angelmondragon/dealroom-backend/internal/feepolicies"
	"github.com/angelmondragon/dealroom-backend/internal/notifications"
	"github.com/angelmondragon/dealroom-backend/internal/offers"
	"github.com/angelmondragon/dealroom-backend/internal/rooms"
	"github.com/angelmondragon/dealroom-backend/internal/settlements"
	"github.com/angelmondragon/dealroom-backend/internal/signatures"
	"github.com/angelmondragon/dealroom-backend/pkg/config"
	"github.com/angelmondragon/dealroom-backend/pkg/enums"
	"github.com/angelmondragon/dealroom-backend/pkg/logger"
	"github.com/angelmondragon/dealroom-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/dealroom-backend/pkg/redis"
)

// RouterParams carries everything the API surface needs. Idempotency,
// RateLimits, and HTTPMetrics may be nil to disable the matching middleware.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Readiness   map[string]controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	RateLimits  middleware.RateLimitStore
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Rooms         rooms.Service
	Offers        offers.Service
	Signatures    signatures.Service
	Settlements   settlements.Service
	Audit         audit.Service
	Notifications notifications.Service
	FeePolicies   feepolicies.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins...),
	)

	commandPolicy := middleware.NewRateLimitPolicy(
		"commands",
		cfg.RateLimit.CommandWindow,
		0,
		cfg.RateLimit.CommandLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.CommandRateLimit(commandPolicy, p.RateLimits, logg))
		r.Use(middleware.Idempotency(p.Idempotency, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", controllers.ListRooms(p.Rooms, logg))
			r.Post("/", controllers.CreateRoom(p.Rooms, logg))

			r.Route("/{roomId}", func(r chi.Router) {
				r.Get("/", controllers.GetRoom(p.Rooms, logg))
				r.Post("/participants", controllers.AddRoomParticipant(p.Rooms, logg))
				r.Get("/offers", controllers.ListOffers(p.Offers, logg))
				r.Post("/offers", controllers.SubmitOffer(p.Offers, logg))
				r.Get("/documents", controllers.ListDocuments(p.Signatures, logg))
				r.Post("/documents", controllers.UploadDocument(p.Signatures, logg))
				r.Post("/contracts", controllers.GenerateContract(p.Signatures, logg))
				r.Get("/settlements", controllers.ListSettlements(p.Settlements, logg))
				r.Get("/audit", controllers.ListRoomAudit(p.Rooms, p.Audit, logg))

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole(logg, enums.UserRoleOperator))
					r.Post("/transitions", controllers.TransitionRoom(p.Rooms, logg))
					r.Post("/settlements", controllers.CreateManualSettlement(p.Settlements, logg))
				})
			})
		})

		r.Post("/offers/{offerId}/resolve", controllers.ResolveOffer(p.Offers, logg))

		r.Route("/documents/{documentId}", func(r chi.Router) {
			r.Get("/", controllers.GetDocument(p.Signatures, logg))
			r.Post("/signature-requests", controllers.RequestSignatures(p.Signatures, logg))
			r.Post("/signatures", controllers.RecordSignature(p.Signatures, logg))
			r.With(middleware.RequireRole(logg, enums.UserRoleOperator)).Post("/cascade", controllers.ResumeCascade(p.Signatures, logg))
		})

		r.Route("/settlements/{settlementId}", func(r chi.Router) {
			r.Get("/", controllers.GetSettlement(p.Settlements, logg))
			r.With(middleware.RequireRole(logg, enums.UserRoleOperator)).Post("/status", controllers.UpdateSettlementStatus(p.Settlements, logg))
		})

		r.Get("/fee-policies", controllers.ListActiveFeePolicies(p.FeePolicies, logg))

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
		})
	})

	return r
}
