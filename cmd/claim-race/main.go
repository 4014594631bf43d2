// claim-race drives concurrent claim traffic against a running api-server to
// demonstrate that each unassigned appointment is won by exactly one provider.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/careloop/scheduling/internal/db"
)

type raceConfig struct {
	APIBaseURL      string
	Workers         int
	AppointmentsCap int
	ProvidersCap    int
	PostgresDSN     string
}

type metrics struct {
	total     int64
	wins      int64
	conflicts int64
	errors    int64

	mu        sync.Mutex
	latencies []time.Duration
	winners   map[uuid.UUID][]uuid.UUID // appointment -> providers that got a 200
}

func (m *metrics) record(apptID, providerID uuid.UUID, latency time.Duration, status int, err error) {
	atomic.AddInt64(&m.total, 1)

	m.mu.Lock()
	m.latencies = append(m.latencies, latency)
	m.mu.Unlock()

	switch {
	case err != nil:
		atomic.AddInt64(&m.errors, 1)
	case status == http.StatusOK:
		atomic.AddInt64(&m.wins, 1)
		m.mu.Lock()
		m.winners[apptID] = append(m.winners[apptID], providerID)
		m.mu.Unlock()
	case status == http.StatusConflict:
		atomic.AddInt64(&m.conflicts, 1)
	default:
		atomic.AddInt64(&m.errors, 1)
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("claim-race starting")

	_ = godotenv.Load()

	cfg := raceConfig{
		APIBaseURL:      getEnv("RACE_API_BASE_URL", "http://localhost:8080"),
		Workers:         getInt("RACE_WORKERS", 20),
		AppointmentsCap: getInt("RACE_APPOINTMENTS", 100),
		ProvidersCap:    getInt("RACE_PROVIDERS", 25),
		PostgresDSN:     os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	appointments, err := loadIDs(ctx, pgPool, `
		SELECT id FROM appointments
		WHERE provider_id IS NULL AND status = 'pending'
		LIMIT $1
	`, cfg.AppointmentsCap)
	if err != nil {
		log.Fatalf("load appointments: %v", err)
	}
	providers, err := loadIDs(ctx, pgPool, `
		SELECT id FROM providers
		WHERE is_verified
		LIMIT $1
	`, cfg.ProvidersCap)
	if err != nil {
		log.Fatalf("load providers: %v", err)
	}
	if len(appointments) == 0 || len(providers) == 0 {
		log.Fatal("need seeded unassigned appointments and verified providers (run cmd/seed first)")
	}

	log.Printf("racing %d workers over %d appointments with %d providers",
		cfg.Workers, len(appointments), len(providers))

	m := &metrics{winners: make(map[uuid.UUID][]uuid.UUID)}
	client := &http.Client{Timeout: 10 * time.Second}

	// Every worker walks the same appointment list, so every appointment is
	// contested by every worker.
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
			for _, apptID := range appointments {
				providerID := providers[rng.Intn(len(providers))]
				claim(client, cfg.APIBaseURL, apptID, providerID, m)
			}
		}(i)
	}
	wg.Wait()

	printReport(m, len(appointments))
}

func claim(client *http.Client, baseURL string, apptID, providerID uuid.UUID, m *metrics) {
	body, _ := json.Marshal(map[string]string{"provider_id": providerID.String()})

	start := time.Now()
	req, _ := http.NewRequest(http.MethodPost,
		fmt.Sprintf("%s/appointments/%s/claim", baseURL, apptID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	latency := time.Since(start)

	status := 0
	if err == nil {
		status = resp.StatusCode
		resp.Body.Close()
	}
	m.record(apptID, providerID, latency, status, err)
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, limit int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func printReport(m *metrics, appointments int) {
	total := atomic.LoadInt64(&m.total)
	wins := atomic.LoadInt64(&m.wins)
	conflicts := atomic.LoadInt64(&m.conflicts)
	errs := atomic.LoadInt64(&m.errors)

	m.mu.Lock()
	defer m.mu.Unlock()

	doubleClaims := 0
	for _, winners := range m.winners {
		if len(winners) > 1 {
			doubleClaims++
		}
	}

	sort.Slice(m.latencies, func(i, j int) bool { return m.latencies[i] < m.latencies[j] })
	var p50, p95 time.Duration
	if n := len(m.latencies); n > 0 {
		p50 = m.latencies[n*50/100]
		idx := n * 95 / 100
		if idx >= n {
			idx = n - 1
		}
		p95 = m.latencies[idx]
	}

	fmt.Println("\nCLAIM RACE REPORT")
	fmt.Printf("  Requests:       %d\n", total)
	fmt.Printf("  Wins:           %d (expected %d)\n", wins, appointments)
	fmt.Printf("  Conflicts:      %d\n", conflicts)
	fmt.Printf("  Errors:         %d\n", errs)
	fmt.Printf("  Double claims:  %d\n", doubleClaims)
	fmt.Printf("  Latency:        p50=%s p95=%s\n", p50.Round(time.Millisecond), p95.Round(time.Millisecond))

	if doubleClaims > 0 {
		fmt.Println("  RESULT: FAIL — an appointment was claimed by more than one provider")
		os.Exit(1)
	}
	fmt.Println("  RESULT: OK — every appointment claimed at most once")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
