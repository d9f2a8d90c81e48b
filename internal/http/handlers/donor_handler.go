// README: Donor snapshot ingestion and ranked search endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hemolink/internal/modules/donor"
	"hemolink/internal/types"
)

type DonorHandler struct {
	donors *donor.Service
}

func NewDonorHandler(svc *donor.Service) *DonorHandler {
	return &DonorHandler{donors: svc}
}

type donorSnapshotReq struct {
	Name              string       `json:"name"`
	Email             string       `json:"email"`
	Phone             string       `json:"phone"`
	DeviceToken       string       `json:"device_token"`
	BloodGroup        string       `json:"blood_group"`
	LocationText      string       `json:"location_text"`
	Coordinates       *types.Point `json:"coordinates"`
	EligibilityStatus string       `json:"eligibility_status"`
	LastDonationDate  *time.Time   `json:"last_donation_date"`
	DonationCount     *int         `json:"donation_count"`
}

// UpsertSnapshot ingests a profile-service donor snapshot.
func (h *DonorHandler) UpsertSnapshot(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req donorSnapshotReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	err := h.donors.UpsertSnapshot(c.Request.Context(), donor.Donor{
		ID:                id,
		Name:              req.Name,
		Email:             req.Email,
		Phone:             req.Phone,
		DeviceToken:       req.DeviceToken,
		BloodGroup:        req.BloodGroup,
		LocationText:      req.LocationText,
		Coordinates:       req.Coordinates,
		EligibilityStatus: req.EligibilityStatus,
		LastDonationDate:  req.LastDonationDate,
		DonationCount:     req.DonationCount,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"donor_id": id})
}

type donorMatchResp struct {
	DonorID          types.ID   `json:"donor_id"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone"`
	BloodGroup       string     `json:"blood_group"`
	LocationText     string     `json:"location_text"`
	DistanceKm       *float64   `json:"distance_km"`
	Ready            bool       `json:"ready"`
	EligibilityLabel string     `json:"eligibility_label"`
	LastDonationDate *time.Time `json:"last_donation_date"`
	DonationCount    *int       `json:"donation_count"`
}

// Search runs the ranked donor search.
func (h *DonorHandler) Search(c *gin.Context) {
	q := donor.SearchQuery{
		BloodGroup:   c.Query("blood_group"),
		Origin:       queryPoint(c),
		Availability: donor.Availability(c.Query("availability")),
	}
	if radius, ok := queryFloat(c, "radius_km"); ok {
		q.RadiusKm = radius
	}
	if limit, ok := queryInt(c, "limit"); ok {
		q.Limit = limit
	}

	matches, err := h.donors.Search(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]donorMatchResp, len(matches))
	for i, m := range matches {
		out[i] = donorMatchResp{
			DonorID:          m.Donor.ID,
			Name:             m.Donor.Name,
			Phone:            m.Donor.Phone,
			BloodGroup:       m.Donor.BloodGroup,
			LocationText:     m.Donor.LocationText,
			DistanceKm:       m.DistanceKm,
			Ready:            m.Ready,
			EligibilityLabel: m.Label,
			LastDonationDate: m.Donor.LastDonationDate,
			DonationCount:    m.Donor.DonationCount,
		}
	}
	c.JSON(http.StatusOK, gin.H{"matches": out, "count": len(out)})
}

// Nearby reads the low-latency GEO index: donor ids only, nearest first.
func (h *DonorHandler) Nearby(c *gin.Context) {
	origin := queryPoint(c)
	if origin == nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "lat and lng are required"})
		return
	}
	radius, ok := queryFloat(c, "radius_km")
	if !ok || radius <= 0 {
		radius = 10
	}
	ids, err := h.donors.Nearby(c.Request.Context(), c.Query("blood_group"), *origin, radius)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"donor_ids": ids, "count": len(ids)})
}
