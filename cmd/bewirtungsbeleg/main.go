package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "bewirtungsbeleg",
		Usage:  "Account token service and receipt reconciliation",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Action: serve,
			},
			{
				Name:  "reconcile",
				Usage: "Merge OCR extractions into an expense form and print the result",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "initial", Usage: "JSON file with the current form values"},
					&cli.StringFlag{Name: "invoice", Usage: "JSON file with the invoice extraction"},
					&cli.StringFlag{Name: "slip", Usage: "JSON file with the card slip extraction"},
					&cli.StringFlag{Name: "order", Value: orderInvoiceFirst, Usage: "merge order: invoice-first or slip-first"},
				},
				Action: reconcile,
			},
			{
				Name:   "purge-tokens",
				Usage:  "Delete expired tokens from the Postgres token store",
				Action: purgeTokens,
			},
		},
	}
}
