// README: Hospital availability matching endpoint.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hemolink/internal/modules/hospital"
	"hemolink/internal/types"
)

type HospitalHandler struct {
	hospitals *hospital.Service
}

func NewHospitalHandler(svc *hospital.Service) *HospitalHandler {
	return &HospitalHandler{hospitals: svc}
}

type hospitalMatchResp struct {
	HospitalID    types.ID `json:"hospital_id"`
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Contact       string   `json:"contact"`
	Units         int      `json:"units"`
	FreshnessDays int      `json:"freshness_days"`
	DistanceKm    *float64 `json:"distance_km"`
	Compatibility string   `json:"compatibility"`
}

// Match ranks hospitals holding matching stock.
func (h *HospitalHandler) Match(c *gin.Context) {
	q := hospital.MatchQuery{
		BloodGroup:   c.Query("blood_group"),
		Component:    c.Query("component"),
		LocationText: c.Query("location"),
		Urgency:      c.Query("urgency"),
		Origin:       queryPoint(c),
		Sort:         hospital.SortMode(c.Query("sort")),
	}
	if radius, ok := queryFloat(c, "radius_km"); ok {
		q.RadiusKm = radius
	}
	if minUnits, ok := queryInt(c, "min_units"); ok {
		q.MinUnits = minUnits
	}

	matches, err := h.hospitals.Match(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]hospitalMatchResp, len(matches))
	for i, m := range matches {
		out[i] = hospitalMatchResp{
			HospitalID:    m.Hospital.ID,
			Name:          m.Hospital.Name,
			Address:       m.Hospital.Address,
			Contact:       m.Hospital.Contact,
			Units:         m.Units,
			FreshnessDays: m.FreshnessDays,
			DistanceKm:    m.DistanceKm,
			Compatibility: string(m.Compatibility),
		}
	}
	c.JSON(http.StatusOK, gin.H{"matches": out, "count": len(out)})
}
