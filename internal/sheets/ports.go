// Package sheets defines the outbound ports of the spreadsheet export.
package sheets

import (
	"context"

	"finny/internal/finance"
)

// Ports for outbound adapters.
type (
	// AnnualExporter writes the year summary of one user. A blank userID
	// targets the shared tab of single-user exports.
	AnnualExporter interface {
		ExportAnnual(ctx context.Context, userID string, sum finance.AnnualSummary) error
	}
)
