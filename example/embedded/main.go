// Example: Using the PocketSaver gateway as an embedded library
//
// This example builds the in-memory adapter, seeds the demo account and runs
// the statements the PocketSaver dashboard issues, without an HTTP server.
//
// Run this example:
//
//	go run ./example/embedded
package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sirupsen/logrus"

	"github.com/yeoleshweta/PocketSaver/pkg/config"
	"github.com/yeoleshweta/PocketSaver/pkg/gateway"
	"github.com/yeoleshweta/PocketSaver/server/apierror"
)

func main() {
	fmt.Println("=== PocketSaver Embedded Example ===")

	ctx := context.Background()
	cfg := config.Default()
	cfg.Adapter = config.AdapterMemory

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create gateway: %v", err)
	}
	defer gw.Close()

	userID, err := gateway.SeedDemo(ctx, gw, gateway.DemoEmail, gateway.DemoPassword)
	if err != nil {
		log.Fatalf("Failed to seed demo account: %v", err)
	}
	fmt.Printf("Demo user: %s\n\n", userID)

	// Record a purchase with its round-up
	_, err = gw.Execute(ctx,
		"INSERT INTO transactions (user_id, merchant, amount, category, rounded_diff) VALUES ($1, $2, $3, $4, $5) RETURNING *",
		userID, "Coffee Shop", -4.25, "Food", 0.75)
	if err != nil {
		log.Fatalf("Failed to insert transaction: %v", err)
	}

	// Set a budget, then raise it with the same upsert
	for _, limit := range []float64{200, 350} {
		rows, err := gw.Execute(ctx,
			`INSERT INTO budgets (user_id, category, monthly_limit) VALUES ($1, $2, $3)
			 ON CONFLICT (user_id, category) DO UPDATE SET monthly_limit = EXCLUDED.monthly_limit RETURNING *`,
			userID, "Food", limit)
		if err != nil {
			log.Fatalf("Failed to upsert budget: %v", err)
		}
		fmt.Printf("Budget Food: %v\n", rows[0]["monthly_limit"])
	}

	subs, err := gw.Execute(ctx, "SELECT name, cost FROM subscriptions WHERE user_id = $1 ORDER BY cost DESC", userID)
	if err != nil {
		log.Fatalf("Failed to list subscriptions: %v", err)
	}
	fmt.Println("\nSubscriptions:")
	for _, s := range subs {
		fmt.Printf("  %-16v %v\n", s["name"], s["cost"])
	}

	// Registering the demo email again is rejected
	_, err = gw.Execute(ctx, "INSERT INTO users(name, email, password_hash) VALUES($1, $2, $3) RETURNING id",
		"Someone", gateway.DemoEmail, "hash")
	if errors.Is(err, apierror.ErrUniqueViolation) {
		fmt.Println("\nDuplicate registration rejected as expected")
	}

	fmt.Println("\n=== Example Complete ===")
}
