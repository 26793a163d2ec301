package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// LoadTestConfig holds configuration for load testing
type LoadTestConfig struct {
	BaseURL         string
	NumUsers        int
	ConcurrentUsers int
	EventCapacity   int
	Retract         bool
}

// LoadTestResult holds the results of load testing
type LoadTestResult struct {
	TotalRequests int
	Confirmed     int
	Waitlisted    int
	Failed        int
	Latencies     []time.Duration
	ThroughputRPS float64
	ErrorsByType  map[string]int
}

// LoadTester seeds an event over the API and fires concurrent sign-ups at it
type LoadTester struct {
	config  LoadTestConfig
	client  *http.Client
	admin   uuid.UUID
	org     uuid.UUID
	eventID uuid.UUID
	users   []uuid.UUID
	results LoadTestResult
	mutex   sync.Mutex
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewLoadTester creates a new load tester
func NewLoadTester(config LoadTestConfig) *LoadTester {
	return &LoadTester{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		org: uuid.New(),
		results: LoadTestResult{
			ErrorsByType: make(map[string]int),
		},
	}
}

// Initialize creates an organizer, an event and the users that will sign up
func (lt *LoadTester) Initialize(ctx context.Context) error {
	fmt.Println("Initializing load test data...")
	run := uuid.NewString()[:8]

	admin, err := lt.createUser(ctx, "organizer-"+run)
	if err != nil {
		return fmt.Errorf("failed to create organizer: %w", err)
	}
	lt.admin = admin

	if _, err := lt.call(ctx, http.MethodPost, "/api/v1/organizations/"+lt.org.String()+"/members", nil,
		map[string]string{"user_id": admin.String(), "role": "ADMIN"}); err != nil {
		return fmt.Errorf("failed to grant organizer role: %w", err)
	}

	data, err := lt.call(ctx, http.MethodPost, "/api/v1/events", &lt.admin, map[string]interface{}{
		"organization_id":  lt.org,
		"title":            "Load test " + run,
		"capacity":         lt.config.EventCapacity,
		"sign_ups_enabled": true,
	})
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	var event struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	lt.eventID = event.ID

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lt.config.ConcurrentUsers)
	lt.users = make([]uuid.UUID, lt.config.NumUsers)
	for i := range lt.users {
		g.Go(func() error {
			id, err := lt.createUser(gctx, fmt.Sprintf("user-%s-%d", run, i))
			lt.users[i] = id
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}

	fmt.Printf("Created event %s (capacity %d) and %d users\n", lt.eventID, lt.config.EventCapacity, len(lt.users))
	return nil
}

// RunLoadTest fires one sign-up per user, ConcurrentUsers at a time
func (lt *LoadTester) RunLoadTest(ctx context.Context) {
	fmt.Printf("Starting load test with %d concurrent users...\n", lt.config.ConcurrentUsers)

	start := time.Now()
	var g errgroup.Group
	g.SetLimit(lt.config.ConcurrentUsers)

	for _, userID := range lt.users {
		g.Go(func() error {
			lt.signUp(ctx, userID)
			return nil
		})
	}
	_ = g.Wait()

	lt.results.ThroughputRPS = float64(lt.results.TotalRequests) / time.Since(start).Seconds()
}

// RunRetractions retracts every confirmed sign-up so the promotion workers
// have to drain the waiting list.
func (lt *LoadTester) RunRetractions(ctx context.Context) {
	fmt.Println("Retracting sign-ups to exercise promotion...")

	var g errgroup.Group
	g.SetLimit(lt.config.ConcurrentUsers)
	for _, userID := range lt.users[:min(len(lt.users), lt.config.EventCapacity)] {
		g.Go(func() error {
			_, err := lt.call(ctx, http.MethodPost, "/api/v1/events/"+lt.eventID.String()+"/retract", &userID, nil)
			if err != nil {
				lt.recordError("retract")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (lt *LoadTester) signUp(ctx context.Context, userID uuid.UUID) {
	started := time.Now()
	status, body, err := lt.do(ctx, http.MethodPost, "/api/v1/events/"+lt.eventID.String()+"/sign-up", &userID, nil)
	elapsed := time.Since(started)

	lt.mutex.Lock()
	defer lt.mutex.Unlock()

	lt.results.TotalRequests++
	lt.results.Latencies = append(lt.results.Latencies, elapsed)

	if err != nil {
		lt.results.Failed++
		lt.results.ErrorsByType["http_request"]++
		return
	}
	if status != http.StatusOK {
		lt.results.Failed++
		lt.results.ErrorsByType[fmt.Sprintf("http_%d", status)]++
		return
	}

	var signUp struct {
		ParticipationStatus string `json:"participation_status"`
	}
	if err := json.Unmarshal(body.Data, &signUp); err != nil {
		lt.results.Failed++
		lt.results.ErrorsByType["decode"]++
		return
	}
	switch signUp.ParticipationStatus {
	case "CONFIRMED":
		lt.results.Confirmed++
	case "ON_WAITLIST":
		lt.results.Waitlisted++
	default:
		lt.results.ErrorsByType["status_"+signUp.ParticipationStatus]++
	}
}

func (lt *LoadTester) recordError(errorType string) {
	lt.mutex.Lock()
	defer lt.mutex.Unlock()
	lt.results.ErrorsByType[errorType]++
}

// VerifyStats reads the organizer view and reports whether capacity held.
func (lt *LoadTester) VerifyStats(ctx context.Context) error {
	data, err := lt.call(ctx, http.MethodGet, "/api/v1/events/"+lt.eventID.String()+"/stats", &lt.admin, nil)
	if err != nil {
		return err
	}
	var stats struct {
		Confirmed         int  `json:"confirmed"`
		OnWaitlist        int  `json:"on_waitlist"`
		Retracted         int  `json:"retracted"`
		RemainingCapacity *int `json:"remaining_capacity"`
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return err
	}

	remaining := 0
	if stats.RemainingCapacity != nil {
		remaining = *stats.RemainingCapacity
	}
	fmt.Printf("\nStored State:\n")
	fmt.Printf("  - Confirmed: %d\n", stats.Confirmed)
	fmt.Printf("  - On waiting list: %d\n", stats.OnWaitlist)
	fmt.Printf("  - Retracted: %d\n", stats.Retracted)
	fmt.Printf("  - Remaining capacity: %d\n", remaining)

	if stats.Confirmed+remaining != lt.config.EventCapacity {
		return fmt.Errorf("capacity drift: confirmed %d + remaining %d != capacity %d",
			stats.Confirmed, remaining, lt.config.EventCapacity)
	}
	fmt.Println("  ✅ confirmed + remaining == capacity")
	return nil
}

// printResults displays the load test results
func (lt *LoadTester) printResults() {
	r := lt.results
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIGN-UP LOAD TEST RESULTS")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf("Test Configuration:\n")
	fmt.Printf("  - Users: %d\n", lt.config.NumUsers)
	fmt.Printf("  - Concurrency: %d\n", lt.config.ConcurrentUsers)
	fmt.Printf("  - Event Capacity: %d\n", lt.config.EventCapacity)

	fmt.Printf("\nOutcomes:\n")
	fmt.Printf("  - Total Requests: %d\n", r.TotalRequests)
	fmt.Printf("  - Confirmed: %d\n", r.Confirmed)
	fmt.Printf("  - Waitlisted: %d\n", r.Waitlisted)
	fmt.Printf("  - Failed: %d\n", r.Failed)

	fmt.Printf("\nResponse Time Percentiles:\n")
	fmt.Printf("  - p50: %s\n", percentile(r.Latencies, 50))
	fmt.Printf("  - p95: %s\n", percentile(r.Latencies, 95))
	fmt.Printf("  - p99: %s\n", percentile(r.Latencies, 99))
	fmt.Printf("  - max: %s\n", percentile(r.Latencies, 100))

	fmt.Printf("\nThroughput:\n")
	fmt.Printf("  - Requests per Second: %.2f\n", r.ThroughputRPS)

	if len(r.ErrorsByType) > 0 {
		fmt.Printf("\nError Breakdown:\n")
		for errorType, count := range r.ErrorsByType {
			fmt.Printf("  - %s: %d\n", errorType, count)
		}
	}

	if r.Confirmed > lt.config.EventCapacity {
		fmt.Printf("\n  ❌ Oversold: %d confirmed for %d spots\n", r.Confirmed, lt.config.EventCapacity)
	}
}

// percentile uses nearest rank on a sorted copy.
func percentile(latencies []time.Duration, p int) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := slices.Clone(latencies)
	slices.Sort(sorted)
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

func (lt *LoadTester) createUser(ctx context.Context, name string) (uuid.UUID, error) {
	data, err := lt.call(ctx, http.MethodPost, "/api/v1/users", nil, map[string]string{
		"username":   name,
		"email":      name + "@loadtest.local",
		"first_name": "Load",
		"last_name":  "Tester",
	})
	if err != nil {
		return uuid.Nil, err
	}
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return uuid.Nil, err
	}
	return created.ID, nil
}

// call performs a request and returns the envelope data of a 2xx response.
func (lt *LoadTester) call(ctx context.Context, method, path string, actor *uuid.UUID, body interface{}) (json.RawMessage, error) {
	status, env, err := lt.do(ctx, method, path, actor, body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%s %s: %d %s", method, path, status, env.Message)
	}
	return env.Data, nil
}

func (lt *LoadTester) do(ctx context.Context, method, path string, actor *uuid.UUID, body interface{}) (int, apiEnvelope, error) {
	var env apiEnvelope

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, env, err
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, lt.config.BaseURL+path, reader)
	if err != nil {
		return 0, env, err
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set("X-User-ID", actor.String())
	}

	resp, err := lt.client.Do(req)
	if err != nil {
		return 0, env, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return resp.StatusCode, env, err
	}
	return resp.StatusCode, env, nil
}

// loadtestCmd represents the loadtest command
var loadtestCmd = &cobra.Command{
	Use:   "loadtest",
	Short: "Run a concurrent sign-up load test against the API",
	Long: `Seed an organizer, an event and a set of users through the HTTP API, then
fire one sign-up per user with bounded concurrency. Reports confirmed,
waitlisted and failed counts, latency percentiles and throughput, and checks
that the stored confirmed count plus remaining capacity equals the capacity.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runLoadTest(cmd.Context()); err != nil {
			fmt.Fprintln(os.Stderr, "Load test failed:", err)
			os.Exit(1)
		}
	},
}

var (
	baseURL         string
	numUsers        int
	concurrentUsers int
	eventCapacity   int
	retractAfter    bool
)

func init() {
	rootCmd.AddCommand(loadtestCmd)

	loadtestCmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the sign-up API")
	loadtestCmd.Flags().IntVar(&numUsers, "users", 2000, "Number of users that sign up")
	loadtestCmd.Flags().IntVar(&concurrentUsers, "concurrent", 200, "Number of concurrent requests")
	loadtestCmd.Flags().IntVar(&eventCapacity, "capacity", 200, "Event capacity")
	loadtestCmd.Flags().BoolVar(&retractAfter, "retract", false, "Retract the first sign-ups afterwards to exercise promotion")
}

func runLoadTest(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	loadTester := NewLoadTester(LoadTestConfig{
		BaseURL:         strings.TrimSuffix(baseURL, "/"),
		NumUsers:        numUsers,
		ConcurrentUsers: max(concurrentUsers, 1),
		EventCapacity:   eventCapacity,
		Retract:         retractAfter,
	})

	fmt.Println("Event Sign-Up Load Test")
	fmt.Println("=======================")

	if err := loadTester.Initialize(ctx); err != nil {
		return err
	}

	loadTester.RunLoadTest(ctx)
	loadTester.printResults()

	if loadTester.config.Retract {
		loadTester.RunRetractions(ctx)
		// Give the promotion workers a moment to drain.
		time.Sleep(2 * time.Second)
	}

	return loadTester.VerifyStats(ctx)
}
