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
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	username    string
	password    string
)

// Metrics
var (
	totalRequests uint64
	successOK     uint64 // applied or replayed
	fail409       uint64 // idempotency conflicts
	fail422       uint64 // insufficient funds
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.StringVar(&username, "user", "admin", "API username")
	flag.StringVar(&password, "pass", "admin123", "API password")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	token, err := login()
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}
	accounts, err := fetchAccounts(token)
	if err != nil {
		log.Fatalf("Account discovery failed: %v", err)
	}
	if len(accounts) < 2 {
		log.Fatal("Need at least 2 seeded accounts; run the seeder first")
	}
	log.Printf("Discovered %d accounts", len(accounts))

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, token, accounts)
	}
	wg.Wait()
	printResults(time.Since(start))
}

func login() (string, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(targetURL+"/auth/login", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("login status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func fetchAccounts(token string) ([]string, error) {
	req, _ := http.NewRequest("GET", targetURL+"/api/v1/accounts?page=1&page_size=100", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("list status %d", resp.StatusCode)
	}
	var out struct {
		Accounts []struct {
			ID string `json:"id"`
		} `json:"accounts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	ids := make([]string, len(out.Accounts))
	for i, a := range out.Accounts {
		ids[i] = a.ID
	}
	return ids, nil
}

func worker(wg *sync.WaitGroup, start time.Time, token string, accounts []string) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		id := pickAccount(accounts)
		op := "deposit"
		if rand.Float32() < 0.4 {
			op = "withdraw"
		}
		key := fmt.Sprintf("bench-%s-%d", id[:8], time.Now().UnixNano())

		body, _ := json.Marshal(map[string]string{"amount": "1.00"})
		req, _ := http.NewRequest("POST",
			fmt.Sprintf("%s/api/v1/accounts/%s/%s", targetURL, id, op),
			bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", key)

		atomic.AddUint64(&totalRequests, 1)
		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&successOK, 1)
		case 409:
			atomic.AddUint64(&fail409, 1)
		case 422:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func pickAccount(accounts []string) string {
	if workload == "hotspot" {
		// Hotspot: 90% of traffic hits the first account, stressing its row lock
		if rand.Float32() < 0.90 {
			return accounts[0]
		}
	}
	return accounts[rand.Intn(len(accounts))]
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&successOK)
	f409 := atomic.LoadUint64(&fail409)
	f422 := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":           workload,
		"duration_sec":       d.Seconds(),
		"total_requests":     total,
		"throughput_tps":     tps,
		"success":            ok,
		"conflicts":          f409,
		"insufficient_funds": f422,
		"errors":             fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
