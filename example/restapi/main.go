// Example: Using the PocketSaver statements API
//
// This example submits parameterized statements over HTTP, which is how
// clients without a Go dependency on the gateway talk to it.
//
// Start the gateway with the demo account:
//
//	go run ./cmd/gateway -seed
//
// Then run this example:
//
//	go run ./example/restapi
package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/yeoleshweta/PocketSaver/pkg/gateway"
	"github.com/yeoleshweta/PocketSaver/server/types"
)

var baseURL = getBaseURL()

func getBaseURL() string {
	host := os.Getenv("POCKETSAVER_HOST")
	if host == "" {
		host = "localhost:8080"
	}
	return fmt.Sprintf("http://%s/api/v1", host)
}

func main() {
	fmt.Println("=== PocketSaver Statements API Example ===")

	// 1. Look up the demo user
	resp, err := submit(types.SubmitStatementRequest{
		Statement:  "SELECT id, name, email FROM users WHERE email = $1",
		Parameters: []any{gateway.DemoEmail},
	})
	if err != nil {
		log.Fatalf("Failed to find demo user: %v", err)
	}
	if resp.RowCount == 0 {
		log.Fatalf("Demo user not found; start the gateway with -seed")
	}
	userID := resp.Rows[0]["id"]
	fmt.Printf("Demo user: %v\n", userID)

	// 2. Spending summary by category
	resp, err = submit(types.SubmitStatementRequest{
		Statement: `SELECT category, COUNT(*) as transaction_count, SUM(ABS(amount)) as total_spent
			FROM transactions WHERE user_id = $1 GROUP BY category ORDER BY total_spent DESC`,
		Parameters: []any{userID},
	})
	if err != nil {
		log.Fatalf("Failed to load summary: %v", err)
	}
	fmt.Println("\nSpending by category:")
	for _, row := range resp.Rows {
		fmt.Printf("  %-12v %v (%v transactions)\n", row["category"], row["total_spent"], row["transaction_count"])
	}

	// 3. Async submission, polled until done
	resp, err = submit(types.SubmitStatementRequest{
		Statement:  "SELECT name, cost FROM subscriptions WHERE user_id = $1",
		Parameters: []any{userID},
		Async:      true,
	})
	if err != nil {
		log.Fatalf("Failed to submit async statement: %v", err)
	}
	handle := resp.Handle
	for resp.Status == "pending" || resp.Status == "running" {
		time.Sleep(100 * time.Millisecond)
		if resp, err = getStatement(handle); err != nil {
			log.Fatalf("Failed to poll statement: %v", err)
		}
	}
	fmt.Printf("\nAsync statement %s finished with status %s and %d rows\n", handle, resp.Status, resp.RowCount)

	// 4. Statements outside the supported dialect are rejected before any backend call
	resp, err = submit(types.SubmitStatementRequest{Statement: "SELECT * FROM users WHERE id = $1 OR email = $2", Parameters: []any{"a", "b"}})
	if err != nil {
		log.Fatalf("Failed to submit: %v", err)
	}
	if resp.Error != nil {
		fmt.Printf("\nRejected: %s (%s)\n", resp.Error.Message, resp.Error.Code)
	}

	fmt.Println("\n=== Example Complete ===")
}

func submit(req types.SubmitStatementRequest) (*types.StatementResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpResp, err := http.Post(baseURL+"/statements", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	return decode(httpResp.Body)
}

func getStatement(handle string) (*types.StatementResponse, error) {
	httpResp, err := http.Get(baseURL + "/statements/" + handle)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	return decode(httpResp.Body)
}

func decode(r io.Reader) (*types.StatementResponse, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var resp types.StatementResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}
