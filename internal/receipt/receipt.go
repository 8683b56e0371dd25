package receipt

import (
	"time"

	"github.com/zombor/receipt-insights/internal/dataset"
)

// SaveStatus reports the outcome of saving a scanned receipt
type SaveStatus string

const (
	// StatusStored means the entry was appended to the dataset
	StatusStored SaveStatus = "stored"
	// StatusDuplicate means the receipt was already recorded and nothing was appended
	StatusDuplicate SaveStatus = "duplicate"
)

// SaveResult is returned by every scan-to-save operation
type SaveResult struct {
	Status  SaveStatus    `json:"status"`
	Message string        `json:"message"`
	Entry   dataset.Entry `json:"entry"`
}

// Profile holds user preferences shown in the mobile app
type Profile struct {
	Name          string    `json:"name"`
	MonthlyBudget float64   `json:"monthly_budget"`
	Currency      string    `json:"currency"`
	Language      string    `json:"language"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const defaultCurrency = "AZN"
