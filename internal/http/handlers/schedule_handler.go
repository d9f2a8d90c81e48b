// README: Transfusion planning, booking and lifecycle endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hemolink/internal/modules/schedule"
	"hemolink/internal/types"
)

type ScheduleHandler struct {
	schedules *schedule.Service
}

func NewScheduleHandler(svc *schedule.Service) *ScheduleHandler {
	return &ScheduleHandler{schedules: svc}
}

type planReq struct {
	Component string `json:"component"`
	Units     int    `json:"units"`
}

type scheduleResp struct {
	ScheduleID          types.ID   `json:"schedule_id"`
	PatientID           types.ID   `json:"patient_id"`
	CohortID            types.ID   `json:"cohort_id"`
	CycleNumber         int        `json:"cycle_number"`
	ScheduledFor        *time.Time `json:"scheduled_for"`
	Status              string     `json:"status"`
	Component           string     `json:"component"`
	Units               int        `json:"units"`
	HospitalID          *types.ID  `json:"hospital_id"`
	AssignedDonorID     *types.ID  `json:"assigned_donor_id"`
	UsedEmergencyBackup bool       `json:"used_emergency_backup"`
}

func toScheduleResp(sc *schedule.Schedule) scheduleResp {
	return scheduleResp{
		ScheduleID:          sc.ID,
		PatientID:           sc.PatientID,
		CohortID:            sc.CohortID,
		CycleNumber:         sc.CycleNumber,
		ScheduledFor:        sc.ScheduledFor,
		Status:              string(sc.Status),
		Component:           sc.Component,
		Units:               sc.Units,
		HospitalID:          sc.HospitalID,
		AssignedDonorID:     sc.AssignedDonorID,
		UsedEmergencyBackup: sc.UsedEmergencyBackup,
	}
}

// PlanNext plans the patient's next cycle; repeated calls return the same
// slot until it resolves.
func (h *ScheduleHandler) PlanNext(c *gin.Context) {
	patientID, ok := pathID(c)
	if !ok {
		return
	}
	var req planReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	sc, err := h.schedules.PlanNext(c.Request.Context(), patientID, req.Component, req.Units)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResp(sc))
}

type bookReq struct {
	HospitalID   string    `json:"hospital_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// Book pins a planned slot to a hospital and time.
func (h *ScheduleHandler) Book(c *gin.Context) {
	scheduleID, ok := pathID(c)
	if !ok {
		return
	}
	var req bookReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	sc, err := h.schedules.Book(c.Request.Context(), scheduleID, types.ID(req.HospitalID), req.ScheduledFor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResp(sc))
}

// Complete is the external confirmation hook.
func (h *ScheduleHandler) Complete(c *gin.Context) {
	scheduleID, ok := pathID(c)
	if !ok {
		return
	}
	sc, err := h.schedules.Complete(c.Request.Context(), scheduleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResp(sc))
}

// Cancel voids a planned or booked slot.
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	scheduleID, ok := pathID(c)
	if !ok {
		return
	}
	sc, err := h.schedules.Cancel(c.Request.Context(), scheduleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResp(sc))
}

type scheduleViewResp struct {
	scheduleResp
	DonorName    string `json:"donor_name"`
	HospitalName string `json:"hospital_name"`
}

func toViewResps(views []schedule.View) []scheduleViewResp {
	out := make([]scheduleViewResp, len(views))
	for i, v := range views {
		sc := v.Schedule
		out[i] = scheduleViewResp{
			scheduleResp: toScheduleResp(&sc),
			DonorName:    v.DonorName,
			HospitalName: v.HospitalName,
		}
	}
	return out
}

// List returns the patient's schedule, newest first.
func (h *ScheduleHandler) List(c *gin.Context) {
	patientID, ok := pathID(c)
	if !ok {
		return
	}
	views, err := h.schedules.List(c.Request.Context(), patientID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedules": toViewResps(views), "count": len(views)})
}

// History returns completed cycles, newest first.
func (h *ScheduleHandler) History(c *gin.Context) {
	patientID, ok := pathID(c)
	if !ok {
		return
	}
	limit, _ := queryInt(c, "limit")
	views, err := h.schedules.History(c.Request.Context(), patientID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": toViewResps(views), "count": len(views)})
}
