// Command finnyctl inspects and maintains budget snapshot files offline.
package main

import (
	"io"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"finny/internal/cli"
)

// Globals is bound to every command.
type Globals struct {
	Locale   string `help:"Locale used for amounts." default:"pt-BR" env:"FINNY_LOCALE"`
	Currency string `help:"ISO 4217 currency code." default:"BRL" env:"FINNY_CURRENCY"`
	NoColor  bool   `name:"no-color" help:"Disable colored output."`

	out io.Writer
	now func() time.Time
}

var cmd struct {
	Globals

	Summary      summaryCmd      `cmd:"" help:"Print the annual summary of a snapshot."`
	Month        monthCmd        `cmd:"" help:"Print the figures of one month."`
	Usage        usageCmd        `cmd:"" help:"Print plan usage for one month."`
	Validate     validateCmd     `cmd:"" help:"Check every record of a snapshot."`
	Normalize    normalizeCmd    `cmd:"" help:"Rewrite a snapshot in canonical form."`
	Add          addCmd          `cmd:"" help:"Append a transaction to a snapshot."`
	ExportSheets exportSheetsCmd `cmd:"" name:"export-sheets" help:"Write the annual summary to Google Sheets."`
	Migrate      migrateCmd      `cmd:"" help:"Manage the SQLite schema."`
	OAuthInit    oauthInitCmd    `cmd:"" name:"oauth-init" help:"Authorize Google Sheets access and save the token."`
	BillingEvent billingEventCmd `cmd:"" name:"billing-event" help:"Publish a billing event to the billing queue."`
}

func main() {
	cli.LoadEnvFile()
	ctx := kong.Parse(&cmd,
		kong.Name("finnyctl"),
		kong.Description("Offline tools for finny budget snapshots."),
		kong.UsageOnError(),
	)
	cmd.Globals.out = os.Stdout
	cmd.Globals.now = time.Now
	err := ctx.Run(&cmd.Globals)
	ctx.FatalIfErrorf(err)
}
