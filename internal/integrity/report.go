// Package integrity recomputes derived ledger state from source rows and
// reports or repairs any divergence from what the cascade cached.
package integrity

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/produce-ledger/internal/shared"
)

// Kind classifies a finding.
type Kind string

const (
	KindOutstandingMismatch Kind = "outstanding_mismatch"
	KindOutstandingMissing  Kind = "outstanding_missing"
	KindRunningBalanceStale Kind = "running_balance_stale"
	KindInventoryDivergence Kind = "inventory_divergence"
	KindItemTypeDrift       Kind = "item_type_drift"
)

// Finding is one divergence between cached and recomputed state.
type Finding struct {
	Kind     Kind            `json:"kind"`
	Role     shared.Role     `json:"role,omitempty"`
	PartyID  int64           `json:"party_id,omitempty"`
	ItemID   int64           `json:"item_id"`
	Variety  string          `json:"variety,omitempty"`
	EntryID  int64           `json:"entry_id,omitempty"`
	Cached   decimal.Decimal `json:"cached"`
	Expected decimal.Decimal `json:"expected"`
	Message  string          `json:"message"`
	Repaired bool            `json:"repaired"`
}

// Report is the outcome of one scan.
type Report struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Repair       bool      `json:"repair"`
	PairsChecked int       `json:"pairs_checked"`
	RowsChecked  int       `json:"rows_checked"`
	Findings     []Finding `json:"findings"`
	Issues       []string  `json:"issues"`
	Repairs      []string  `json:"repairs"`
}

// Clean reports whether the scan found nothing.
func (r Report) Clean() bool {
	return len(r.Findings) == 0
}

// Summary renders the report's counts for logs and job output.
func (r Report) Summary() string {
	return newPrinter().Sprintf("integrity run %s: %d pairs, %d inventory rows, %d issues, %d repairs",
		r.RunID, r.PairsChecked, r.RowsChecked, len(r.Issues), len(r.Repairs))
}

func (r *Report) add(f Finding) {
	r.Findings = append(r.Findings, f)
	r.Issues = append(r.Issues, f.Message)
	if f.Repaired {
		r.Repairs = append(r.Repairs, "repaired: "+f.Message)
	}
}

func newPrinter() *message.Printer {
	return message.NewPrinter(language.English)
}

func amount(v decimal.Decimal) float64 {
	return v.InexactFloat64()
}
