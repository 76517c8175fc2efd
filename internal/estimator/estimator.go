// Package estimator computes the delivery duration shown to the customer.
// The formula is a fixed approximation, not a routing ETA.
package estimator

import (
	"fmt"
	"time"

	"fueldelivery/internal/model"
)

const (
	baseSeconds     = 5
	perLiterSeconds = 2
)

var companyOffsets = map[model.Company]int{
	model.CompanySlovnaft: 1,
	model.CompanyShell:    10,
	model.CompanyOMV:      12,
}

// Seconds returns the estimated delivery duration in seconds. Unknown companies add no offset.
func Seconds(amount int, company model.Company) int {
	return baseSeconds + amount*perLiterSeconds + companyOffsets[company]
}

// Label is Seconds formatted for display.
func Label(amount int, company model.Company) string {
	return FormatSeconds(Seconds(amount, company))
}

// CompletionTime is now plus the estimated duration.
func CompletionTime(now time.Time, amount int, company model.Company) time.Time {
	return now.Add(time.Duration(Seconds(amount, company)) * time.Second)
}

// FormatSeconds renders "Ns" below a minute and "Mm Ss" otherwise. Negative values clamp to zero.
func FormatSeconds(total int) string {
	if total < 0 {
		total = 0
	}
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}
