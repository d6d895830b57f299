package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olekukonko/tablewriter"
)

var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	numAccounts int
)

var (
	totalRequests uint64
	successNew    uint64 // 201 Created
	successReplay uint64 // idempotent replays
	failConflict  uint64 // 409 in-progress
	failFunds     uint64 // 422 insufficient funds
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&numAccounts, "accounts", 100, "Accounts to provision before the run")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	accounts, err := provisionAccounts(numAccounts)
	if err != nil {
		log.Fatalf("Provisioning failed: %v", err)
	}
	log.Printf("Provisioned %d funded accounts", len(accounts))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, accounts)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// provisionAccounts opens and funds the benchmark account pool through the
// public API so the run works against any backing store.
func provisionAccounts(n int) ([]string, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	accounts := make([]string, 0, n)

	for i := 0; i < n; i++ {
		body, _ := json.Marshal(map[string]any{"currency": "INR"})
		resp, err := client.Post(targetURL+"/api/v1/accounts", "application/json", bytes.NewBuffer(body))
		if err != nil {
			return nil, err
		}
		var acct struct {
			AccountNumber string `json:"account_number"`
		}
		err = json.NewDecoder(resp.Body).Decode(&acct)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if acct.AccountNumber == "" {
			return nil, fmt.Errorf("account creation returned status %d", resp.StatusCode)
		}

		deposit, _ := json.Marshal(map[string]any{"amount": 1_000_000, "description": "benchmark funding"})
		resp, err = client.Post(targetURL+"/api/v1/accounts/"+acct.AccountNumber+"/deposit", "application/json", bytes.NewBuffer(deposit))
		if err != nil {
			return nil, err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("funding returned status %d", resp.StatusCode)
		}

		accounts = append(accounts, acct.AccountNumber)
	}
	return accounts, nil
}

func worker(wg *sync.WaitGroup, start time.Time, accounts []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		from, to := pickAccounts(accounts)
		amount := int64(100)

		key := fmt.Sprintf("bench-%s-%s-%d", from, to, time.Now().UnixNano())

		payload := map[string]interface{}{
			"from_account": from,
			"to_account":   to,
			"amount":       amount,
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/transfers", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		replayed := resp.Header.Get("Idempotency-Replayed") == "true"
		switch {
		case replayed:
			atomic.AddUint64(&successReplay, 1)
		case resp.StatusCode == http.StatusCreated:
			atomic.AddUint64(&successNew, 1)
		case resp.StatusCode == http.StatusConflict:
			atomic.AddUint64(&failConflict, 1)
		case resp.StatusCode == http.StatusUnprocessableEntity:
			atomic.AddUint64(&failFunds, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickAccounts(accounts []string) (string, string) {
	if workload == "hotspot" && len(accounts) >= 2 {
		// Hotspot: 90% of traffic hammers the first two accounts.
		if rand.Float32() < 0.90 {
			if rand.Float32() < 0.5 {
				return accounts[0], accounts[1]
			}
			return accounts[1], accounts[0]
		}
	}

	a := rand.Intn(len(accounts))
	b := rand.Intn(len(accounts))
	for a == b {
		b = rand.Intn(len(accounts))
	}
	return accounts[a], accounts[b]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	created := atomic.LoadUint64(&successNew)
	replays := atomic.LoadUint64(&successReplay)
	conflicts := atomic.LoadUint64(&failConflict)
	funds := atomic.LoadUint64(&failFunds)
	errs := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Workload", workload})
	table.Append([]string{"Duration", fmt.Sprintf("%.1fs", d.Seconds())})
	table.Append([]string{"Total Requests", fmt.Sprintf("%d", total)})
	table.Append([]string{"Throughput (tps)", fmt.Sprintf("%.1f", tps)})
	table.Append([]string{"Created", fmt.Sprintf("%d", created)})
	table.Append([]string{"Idempotent Replays", fmt.Sprintf("%d", replays)})
	table.Append([]string{"Conflicts (409)", fmt.Sprintf("%d", conflicts)})
	table.Append([]string{"Insufficient Funds", fmt.Sprintf("%d", funds)})
	table.Append([]string{"Errors", fmt.Sprintf("%d", errs)})
	table.Render()

	results := map[string]interface{}{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     tps,
		"success_created":    created,
		"success_replay":     replays,
		"aborts_conflict":    conflicts,
		"insufficient_funds": funds,
		"errors":             errs,
	}

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.Printf("Could not write %s: %v", filename, err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
