// README: Cohort creation and details endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hemolink/internal/modules/cohort"
	"hemolink/internal/modules/donor"
	"hemolink/internal/types"
)

type CohortHandler struct {
	cohorts *cohort.Manager
	donors  *donor.Service
}

func NewCohortHandler(cohorts *cohort.Manager, donors *donor.Service) *CohortHandler {
	return &CohortHandler{cohorts: cohorts, donors: donors}
}

type createCohortReq struct {
	Name        string     `json:"name"`
	DonorEmails []string   `json:"donor_emails"`
	StartDate   *time.Time `json:"start_date"`
}

// Create builds a rotating cohort from donor emails. Every email must
// resolve to a registered donor snapshot.
func (h *CohortHandler) Create(c *gin.Context) {
	patientID, ok := pathID(c)
	if !ok {
		return
	}
	var req createCohortReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	donors, err := h.donors.ResolveEmails(c.Request.Context(), req.DonorEmails)
	if err != nil {
		writeError(c, err)
		return
	}
	donorIDs := make([]types.ID, len(donors))
	for i, d := range donors {
		donorIDs[i] = d.ID
	}
	cmd := cohort.CreateCommand{
		PatientID: patientID,
		Name:      req.Name,
		DonorIDs:  donorIDs,
	}
	if req.StartDate != nil {
		cmd.StartDate = *req.StartDate
	}
	created, err := h.cohorts.Create(c.Request.Context(), cmd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"cohort_id":  created.ID,
		"patient_id": created.PatientID,
		"start_date": created.StartDate,
		"active":     created.Active,
	})
}

type memberResp struct {
	SequenceOrder    int        `json:"sequence_order"`
	DonorID          *types.ID  `json:"donor_id"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone"`
	BloodGroup       string     `json:"blood_group"`
	LocationText     string     `json:"location_text"`
	Ready            bool       `json:"ready"`
	EligibilityLabel string     `json:"eligibility_label"`
	LastDonationDate *time.Time `json:"last_donation_date"`
	NextScheduledFor *time.Time `json:"next_scheduled_for"`
}

// Details returns the cohort membership in rotation order. A patient
// without a cohort gets an empty body, not an error.
func (h *CohortHandler) Details(c *gin.Context) {
	patientID, ok := pathID(c)
	if !ok {
		return
	}
	details, err := h.cohorts.GetDetails(c.Request.Context(), patientID)
	if err != nil {
		writeError(c, err)
		return
	}
	members := make([]memberResp, len(details.Members))
	for i, m := range details.Members {
		members[i] = memberResp{
			SequenceOrder:    m.SequenceOrder,
			DonorID:          m.DonorID,
			Name:             m.Name,
			Phone:            m.Phone,
			BloodGroup:       m.BloodGroup,
			LocationText:     m.LocationText,
			Ready:            m.Ready,
			EligibilityLabel: m.EligibilityLabel,
			LastDonationDate: m.LastDonationDate,
			NextScheduledFor: m.NextScheduledFor,
		}
	}
	resp := gin.H{
		"members":              members,
		"next_transfusion_for": details.NextTransfusionFor,
	}
	if details.Cohort != nil {
		resp["cohort_id"] = details.Cohort.ID
		resp["name"] = details.Cohort.Name
		resp["start_date"] = details.Cohort.StartDate
		resp["active"] = details.Cohort.Active
	}
	c.JSON(http.StatusOK, resp)
}
