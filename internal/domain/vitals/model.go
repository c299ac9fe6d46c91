package vitals

import (
	"time"

	"github.com/google/uuid"
)

// Measurements are the values taken at one sitting. Nil means the value was
// not measured; it is never stored as zero.
type Measurements struct {
	BloodPressure    string   `json:"bloodPressure"`
	HeartRate        *int     `json:"heartRate,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	Weight           *float64 `json:"weight,omitempty"`
	Height           *float64 `json:"height,omitempty"`
	OxygenSaturation *float64 `json:"oxygenSaturation,omitempty"`
}

// VitalsRecord is append-only. The latest record per patient is the one with
// the greatest RecordedAt.
type VitalsRecord struct {
	ID         uuid.UUID  `json:"id"`
	PatientID  uuid.UUID  `json:"patientId"`
	RecordedBy *uuid.UUID `json:"recordedBy,omitempty"`
	RecordedAt time.Time  `json:"recordedAt"`
	Measurements
}
