// README: Patient snapshot model.
package patient

import (
	"time"

	"hemolink/internal/types"
)

// Patient is a read-only snapshot pushed by the patient-profile service,
// mirroring the donor snapshot pattern. The engine reads blood group and
// location from it; everything else passes through for display joins.
type Patient struct {
	ID           types.ID
	Name         string
	Phone        string
	BloodGroup   string
	Component    string
	LocationText string
	Coordinates  *types.Point
	UpdatedAt    time.Time
}
