package billing

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusPaid
}

type PaymentMethod string

const (
	MethodCash  PaymentMethod = "cash"
	MethodMpesa PaymentMethod = "mpesa"
	MethodCard  PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodMpesa, MethodCard:
		return true
	}
	return false
}

// Bill is raised once per saved consultation.
type Bill struct {
	ID             uuid.UUID      `json:"id"`
	ConsultationID uuid.UUID      `json:"consultationId"`
	PatientID      uuid.UUID      `json:"patientId"`
	Amount         float64        `json:"amount"`
	Status         Status         `json:"status"`
	PaymentMethod  *PaymentMethod `json:"paymentMethod,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	PaidAt         *time.Time     `json:"paidAt,omitempty"`
}

type Filter struct {
	PatientID *uuid.UUID
	Status    Status
}
