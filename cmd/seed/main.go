// seed inserts a demo booking session and an invoice with its payment
// session, then prints the generated capability tokens. Meant for local
// development against a freshly migrated database.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/fieldserve/checkout-portal/internal/config"
	"github.com/fieldserve/checkout-portal/internal/database"
	"github.com/fieldserve/checkout-portal/internal/utils"
)

const sessionTTL = 72 * time.Hour

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	expires := now.Add(sessionTTL)

	bookingToken, err := utils.NewSessionToken()
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO token_sessions (token, kind, status, expires_at, created_at, updated_at)
		 VALUES (?, 'BOOKING', 'ACTIVE', ?, ?, ?)`,
		bookingToken, expires, now, now); err != nil {
		log.Fatalf("insert booking session: %v", err)
	}

	invoiceToken, err := utils.NewSessionToken()
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	invoiceNumber := fmt.Sprintf("INV-%d", now.Unix())
	if _, err := db.ExecContext(ctx,
		`INSERT INTO invoices (invoice_number, customer_code, token, currency, amount_due, amount_paid, status, created_at, updated_at)
		 VALUES (?, 'CUST-DEMO', ?, 'CAD', '120.50', 0, 'DUE', ?, ?)`,
		invoiceNumber, invoiceToken, now, now); err != nil {
		log.Fatalf("insert invoice: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO token_sessions (token, kind, status, invoice_number, expires_at, created_at, updated_at)
		 VALUES (?, 'INVOICE', 'ACTIVE', ?, ?, ?, ?)`,
		invoiceToken, invoiceNumber, expires, now, now); err != nil {
		log.Fatalf("insert invoice session: %v", err)
	}

	fmt.Printf("booking session token:  %s\n", bookingToken)
	fmt.Printf("invoice %s payment token: %s\n", invoiceNumber, invoiceToken)
}
