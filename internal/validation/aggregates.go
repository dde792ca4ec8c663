package validation

import (
	"fmt"
	"math"
	"strconv"

	"intake/internal/form"
)

// PercentTolerance absorbs rounding from two-decimal inputs. It is not
// scaled by row count.
const PercentTolerance = 0.01

// OwnershipTotal sums percentages and rounds to two decimals.
func OwnershipTotal(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return math.Round(sum*100) / 100
}

// TotalIsComplete reports whether a rounded total counts as 100%.
func TotalIsComplete(total float64) bool {
	return math.Abs(total-100) < PercentTolerance
}

// ShareholderTotal is the rounded sum of percentageOwnership.
func ShareholderTotal(d form.Draft) float64 {
	values := make([]float64, 0, len(d.Shareholders))
	for _, s := range d.Shareholders {
		values = append(values, form.NumberValue(s.PercentageOwnership))
	}
	return OwnershipTotal(values)
}

// BeneficialOwnerTotal is the rounded sum of percentageControl.
func BeneficialOwnerTotal(d form.Draft) float64 {
	values := make([]float64, 0, len(d.BeneficialOwners))
	for _, b := range d.BeneficialOwners {
		values = append(values, form.NumberValue(b.PercentageControl))
	}
	return OwnershipTotal(values)
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "%"
}

func ownershipMessage(subject string, total float64) string {
	return fmt.Sprintf("%s totals %s, must equal 100%%", subject, formatPercent(total))
}

func ceilingMessage(c form.CollectionName, n int) string {
	return fmt.Sprintf("%s has %d rows, at most %d are allowed", c, n, c.Limit())
}
