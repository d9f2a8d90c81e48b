// README: Patient snapshot ingestion endpoint.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hemolink/internal/modules/patient"
	"hemolink/internal/types"
)

type PatientHandler struct {
	patients *patient.Service
}

func NewPatientHandler(svc *patient.Service) *PatientHandler {
	return &PatientHandler{patients: svc}
}

type patientSnapshotReq struct {
	Name         string       `json:"name"`
	Phone        string       `json:"phone"`
	BloodGroup   string       `json:"blood_group"`
	Component    string       `json:"component"`
	LocationText string       `json:"location_text"`
	Coordinates  *types.Point `json:"coordinates"`
}

// UpsertSnapshot ingests a profile-service patient snapshot.
func (h *PatientHandler) UpsertSnapshot(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req patientSnapshotReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	err := h.patients.UpsertSnapshot(c.Request.Context(), patient.Patient{
		ID:           id,
		Name:         req.Name,
		Phone:        req.Phone,
		BloodGroup:   req.BloodGroup,
		Component:    req.Component,
		LocationText: req.LocationText,
		Coordinates:  req.Coordinates,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patient_id": id})
}
