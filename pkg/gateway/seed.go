package gateway

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Demo account created by SeedDemo.
const (
	DemoEmail    = "test@pocketsaver.app"
	DemoPassword = "password123"
)

const (
	upsertDemoUser = `INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash
		RETURNING id`

	selectSubscriptions = `SELECT name, cost, last_used, suggest_cancel FROM subscriptions WHERE user_id = $1`

	seedSubscriptions = `INSERT INTO subscriptions (user_id, name, cost, last_used, suggest_cancel)
		VALUES
		  ($1, 'Knetflex', 15.99, NOW() - INTERVAL '2 days', false),
		  ($1, 'Gym Membership', 50.00, NOW() - INTERVAL '45 days', true),
		  ($1, 'Spotify', 9.99, NOW() - INTERVAL '1 day', false),
		  ($1, 'Hulu', 12.99, NOW() - INTERVAL '30 days', true)
		RETURNING *`

	selectSavings = `SELECT * FROM savings WHERE user_id = $1`
	insertSavings = `INSERT INTO savings (user_id) VALUES ($1) RETURNING *`
)

// SeedDemo creates or refreshes the demo account with its default
// subscriptions and savings row, and returns the account id. Running it again
// leaves one account and one set of rows.
func SeedDemo(ctx context.Context, exec Executor, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	rows, err := exec.Execute(ctx, upsertDemoUser, email, string(hash))
	if err != nil {
		return "", fmt.Errorf("failed to upsert demo user: %w", err)
	}
	if len(rows) != 1 {
		return "", fmt.Errorf("upsert of demo user returned %d rows", len(rows))
	}
	userID := fmt.Sprint(rows[0]["id"])

	subs, err := exec.Execute(ctx, selectSubscriptions, userID)
	if err != nil {
		return "", fmt.Errorf("failed to read subscriptions: %w", err)
	}
	if len(subs) == 0 {
		if _, err := exec.Execute(ctx, seedSubscriptions, userID); err != nil {
			return "", fmt.Errorf("failed to seed subscriptions: %w", err)
		}
	}

	savings, err := exec.Execute(ctx, selectSavings, userID)
	if err != nil {
		return "", fmt.Errorf("failed to read savings: %w", err)
	}
	if len(savings) == 0 {
		if _, err := exec.Execute(ctx, insertSavings, userID); err != nil {
			return "", fmt.Errorf("failed to create savings: %w", err)
		}
	}
	return userID, nil
}
