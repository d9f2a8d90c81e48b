// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"hemolink/internal/http/handlers"
	"hemolink/internal/http/middleware"
	"hemolink/internal/infra"
	"hemolink/internal/modules/cohort"
	"hemolink/internal/modules/donor"
	"hemolink/internal/modules/hospital"
	"hemolink/internal/modules/patient"
	"hemolink/internal/modules/request"
	"hemolink/internal/modules/schedule"
)

type RouterDeps struct {
	Donors    *donor.Service
	Patients  *patient.Service
	Hospitals *hospital.Service
	Requests  *request.Service
	Cohorts   *cohort.Manager
	Schedules *schedule.Service
	Verifier  infra.TokenVerifier
	Log       zerolog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	donorHandler := handlers.NewDonorHandler(deps.Donors)
	api.GET("/donors/search", donorHandler.Search)
	api.GET("/donors/nearby", donorHandler.Nearby)
	api.PUT("/donors/:id/snapshot", donorHandler.UpsertSnapshot)

	patientHandler := handlers.NewPatientHandler(deps.Patients)
	api.PUT("/patients/:id/snapshot", patientHandler.UpsertSnapshot)

	hospitalHandler := handlers.NewHospitalHandler(deps.Hospitals)
	api.GET("/hospitals/match", hospitalHandler.Match)

	requestHandler := handlers.NewRequestHandler(deps.Requests)
	api.POST("/requests/:id/broadcast", requestHandler.Broadcast)
	api.GET("/requests/:id/broadcast", requestHandler.Status)

	cohortHandler := handlers.NewCohortHandler(deps.Cohorts, deps.Donors)
	patientScoped := api.Group("/patients/:id", middleware.PatientScope())
	patientScoped.POST("/cohort", cohortHandler.Create)
	patientScoped.GET("/cohort", cohortHandler.Details)

	scheduleHandler := handlers.NewScheduleHandler(deps.Schedules)
	patientScoped.POST("/schedule/plan", scheduleHandler.PlanNext)
	patientScoped.GET("/schedule", scheduleHandler.List)
	patientScoped.GET("/history", scheduleHandler.History)
	api.POST("/schedules/:id/book", scheduleHandler.Book)
	api.POST("/schedules/:id/complete", scheduleHandler.Complete)
	api.POST("/schedules/:id/cancel", scheduleHandler.Cancel)

	return r
}
