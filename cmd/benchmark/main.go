// Benchmark tool for exercising Gannet with synthetic fleet data.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -vessels 50 -days 7
//
// This tool:
//   1. Seeds a synthetic vessel roster and risk weighting
//   2. Generates one landing per vessel per day, plus export certificates
//   3. Marks a configurable fraction of landings as overused (certificates
//      claiming more than was landed)
//   4. Runs a consolidation batch and compares detected overuse against the
//      planted overuse, reporting precision, recall, and throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const dateFormat = "2006-01-02"

var speciesCodes = []string{"COD", "HAD", "NEP", "LBE", "CRE", "SOL", "TUR", "HKE"}

// Landing mirrors the ingest API request format.
type Landing struct {
	ID        string        `json:"id"`
	RSSNumber string        `json:"rssNumber"`
	LandedAt  time.Time     `json:"landedAt"`
	Source    string        `json:"source"`
	Items     []LandingItem `json:"items"`
}

type LandingItem struct {
	Species string  `json:"species"`
	Weight  float64 `json:"weight"`
}

// Certificate mirrors the certificate API request format.
type Certificate struct {
	DocumentNumber string    `json:"documentNumber"`
	Status         string    `json:"status"`
	Products       []Product `json:"products"`
}

type Product struct {
	Species string        `json:"species"`
	Catches []CatchRecord `json:"catches"`
}

type CatchRecord struct {
	PLN                     string     `json:"pln"`
	Date                    time.Time  `json:"date"`
	Weight                  float64    `json:"weight"`
	DataEverExpected        bool       `json:"dataEverExpected"`
	LandingDataExpectedDate *time.Time `json:"landingDataExpectedDate,omitempty"`
	LandingDataEndDate      *time.Time `json:"landingDataEndDate,omitempty"`
}

// ConsolidatedLanding mirrors the consolidated query response format.
type ConsolidatedLanding struct {
	PLN   string `json:"pln"`
	Date  string `json:"date"`
	Items []struct {
		Species            string  `json:"species"`
		ExportWeight       float64 `json:"exportWeight"`
		IsOverusedAllCerts bool    `json:"isOverusedAllCerts"`
	} `json:"items"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	LandingsSent     int64
	CertificatesSent int64
	TotalErrors      int64

	TruePositives  int64 // Planted overuse detected
	FalsePositives int64 // Clean landing flagged
	FalseNegatives int64 // Planted overuse missed
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Gannet base URL")
	vessels := flag.Int("vessels", 50, "Number of vessels in the synthetic fleet")
	days := flag.Int("days", 7, "Number of landing days to generate")
	overuseRate := flag.Float64("overuse", 0.1, "Fraction of landings given overusing certificates (0.0-1.0)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed")
	verbose := flag.Bool("verbose", false, "Print each flagged landing")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║         GANNET BENCHMARK - Synthetic Fleet Consolidation      ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nGannet URL:   %s\n", *baseURL)
	fmt.Printf("Vessels:      %d\n", *vessels)
	fmt.Printf("Days:         %d\n", *days)
	fmt.Printf("Overuse Rate: %.2f\n", *overuseRate)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Println()

	// Check Gannet is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Gannet not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Gannet is running:")
		fmt.Println("  go run cmd/gannet/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Gannet is healthy")

	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{Timeout: 30 * time.Second}

	// Landing days end yesterday so nothing lands in the future.
	endDay := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	startDay := endDay.AddDate(0, 0, -(*days - 1))

	// 1. Seed the roster and weighting
	fmt.Printf("\nSeeding %d vessels...\n", *vessels)
	if err := seedRefData(client, *baseURL, *vessels, startDay, endDay); err != nil {
		fmt.Printf("ERROR: Failed to seed reference data: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Reference data seeded")

	// 2. Generate the workload
	landings, certs, planted := generateWorkload(rng, *vessels, startDay, *days, *overuseRate)
	fmt.Printf("\nGenerated %d landings, %d certificates (%d with planted overuse)\n",
		len(landings), len(certs), len(planted))

	// 3. Send it
	metrics := &Metrics{}
	sendStart := time.Now()
	sendLandings(client, *baseURL, landings, *workers, metrics)
	sendCertificates(client, *baseURL, certs, *workers, metrics)
	sendDuration := time.Since(sendStart)

	fmt.Printf("✓ Ingest complete in %s (%d errors)\n", sendDuration.Round(time.Millisecond), metrics.TotalErrors)

	// 4. Run the batch
	fmt.Println("\nRunning consolidation batch...")
	batchStart := time.Now()
	summary, err := runBatch(client, *baseURL, startDay, endDay)
	if err != nil {
		fmt.Printf("ERROR: Consolidation batch failed: %v\n", err)
		os.Exit(1)
	}
	batchDuration := time.Since(batchStart)
	fmt.Printf("✓ Batch complete in %s: %d landings, %d upserted, %d deleted, %d skipped\n",
		batchDuration.Round(time.Millisecond),
		summary.LandingsFetched, summary.Upserted, summary.Deleted, summary.Skipped)

	// 5. Score detection against the planted overuse
	if err := scoreDetection(client, *baseURL, planted, metrics, *verbose); err != nil {
		fmt.Printf("ERROR: Failed to fetch consolidated landings: %v\n", err)
		os.Exit(1)
	}

	printResults(metrics, len(landings), sendDuration, batchDuration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

func postJSON(client *http.Client, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %d", url, resp.StatusCode)
	}
	return nil
}

func seedRefData(client *http.Client, baseURL string, vessels int, startDay, endDay time.Time) error {
	for i := 0; i < vessels; i++ {
		vessel := map[string]any{
			"rssNumber":        fmt.Sprintf("RSS-%05d", i),
			"pln":              pln(i),
			"name":             fmt.Sprintf("Benchmark Vessel %d", i),
			"licenceValidFrom": startDay.AddDate(-1, 0, 0),
			"licenceValidTo":   endDay.AddDate(1, 0, 0),
		}
		if err := postJSON(client, baseURL+"/refdata/vessels", vessel); err != nil {
			return err
		}
	}

	weighting := map[string]float64{
		"vessel": 1.0, "species": 1.0, "exporter": 1.0, "threshold": 0.2,
	}
	payload, _ := json.Marshal(weighting)
	req, err := http.NewRequest(http.MethodPut, baseURL+"/refdata/weighting", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	return postJSON(client, baseURL+"/refdata/refresh", nil)
}

func pln(i int) string {
	return fmt.Sprintf("BM%04d", i)
}

// generateWorkload builds one landing per vessel per day and two certificates
// per landing. For the planted fraction, certificate usage exceeds the landed
// weight well past the tolerance; otherwise it stays safely inside it.
// Returns the set of planted (pln|date) keys.
func generateWorkload(rng *rand.Rand, vessels int, startDay time.Time, days int, overuseRate float64) ([]Landing, []Certificate, map[string]bool) {
	var landings []Landing
	var certs []Certificate
	planted := make(map[string]bool)

	docSeq := 0
	for v := 0; v < vessels; v++ {
		for d := 0; d < days; d++ {
			day := startDay.AddDate(0, 0, d)
			species := speciesCodes[rng.Intn(len(speciesCodes))]
			landedWeight := 100.0 + rng.Float64()*900.0

			landings = append(landings, Landing{
				ID:        fmt.Sprintf("bm-landing-%d-%d", v, d),
				RSSNumber: fmt.Sprintf("RSS-%05d", v),
				LandedAt:  day.Add(time.Duration(6+rng.Intn(12)) * time.Hour),
				Source:    "LANDING_DECLARATION",
				Items:     []LandingItem{{Species: species, Weight: landedWeight}},
			})

			// Two certificates per landing; overused landings claim double the
			// landed weight in total, clean ones claim 40%.
			perCert := landedWeight * 0.2
			key := pln(v) + "|" + day.Format(dateFormat)
			if rng.Float64() < overuseRate {
				perCert = landedWeight
				planted[key] = true
			}

			// Retrospective window stays open a month past the landing day.
			expected := day.AddDate(0, 0, -1)
			end := day.AddDate(0, 0, 30)

			for c := 0; c < 2; c++ {
				docSeq++
				certs = append(certs, Certificate{
					DocumentNumber: fmt.Sprintf("BM-CC-%06d", docSeq),
					Status:         "COMPLETE",
					Products: []Product{
						{
							Species: species,
							Catches: []CatchRecord{
								{
									PLN:                     pln(v),
									Date:                    day,
									Weight:                  perCert,
									DataEverExpected:        true,
									LandingDataExpectedDate: &expected,
									LandingDataEndDate:      &end,
								},
							},
						},
					},
				})
			}
		}
	}

	return landings, certs, planted
}

func sendLandings(client *http.Client, baseURL string, landings []Landing, workers int, metrics *Metrics) {
	jobs := make(chan Landing, len(landings))
	for _, l := range landings {
		jobs <- l
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for l := range jobs {
				if err := postJSON(client, baseURL+"/landings", l); err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					continue
				}
				atomic.AddInt64(&metrics.LandingsSent, 1)
			}
		}()
	}
	wg.Wait()
}

func sendCertificates(client *http.Client, baseURL string, certs []Certificate, workers int, metrics *Metrics) {
	jobs := make(chan Certificate, len(certs))
	for _, c := range certs {
		jobs <- c
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				if err := postJSON(client, baseURL+"/certificates", c); err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					continue
				}
				atomic.AddInt64(&metrics.CertificatesSent, 1)
			}
		}()
	}
	wg.Wait()
}

// BatchSummary mirrors the consolidation job response format.
type BatchSummary struct {
	LandingsFetched int `json:"landingsFetched"`
	Aggregated      int `json:"aggregated"`
	Upserted        int `json:"upserted"`
	Deleted         int `json:"deleted"`
	Skipped         int `json:"skipped"`
}

func runBatch(client *http.Client, baseURL string, startDay, endDay time.Time) (*BatchSummary, error) {
	body := map[string]string{
		"start": startDay.Format(dateFormat),
		"end":   endDay.Format(dateFormat),
	}
	payload, _ := json.Marshal(body)
	resp, err := client.Post(baseURL+"/jobs/consolidate", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("consolidate returned %d", resp.StatusCode)
	}

	var summary BatchSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func scoreDetection(client *http.Client, baseURL string, planted map[string]bool, metrics *Metrics, verbose bool) error {
	resp, err := client.Get(baseURL + "/consolidated")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var listing struct {
		ConsolidatedLandings []ConsolidatedLanding `json:"consolidatedLandings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return err
	}

	detected := make(map[string]bool)
	for _, doc := range listing.ConsolidatedLandings {
		for _, item := range doc.Items {
			if item.IsOverusedAllCerts {
				detected[doc.PLN+"|"+doc.Date] = true
				if verbose {
					fmt.Printf("  flagged: %s %s %s export=%.1fkg\n", doc.PLN, doc.Date, item.Species, item.ExportWeight)
				}
			}
		}
	}

	for key := range detected {
		if planted[key] {
			metrics.TruePositives++
		} else {
			metrics.FalsePositives++
		}
	}
	for key := range planted {
		if !detected[key] {
			metrics.FalseNegatives++
		}
	}
	return nil
}

func printResults(m *Metrics, landingCount int, sendDuration, batchDuration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                          RESULTS                              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nLandings sent:      %d\n", m.LandingsSent)
	fmt.Printf("Certificates sent:  %d\n", m.CertificatesSent)
	fmt.Printf("Ingest errors:      %d\n", m.TotalErrors)
	if sendDuration > 0 {
		rps := float64(m.LandingsSent+m.CertificatesSent) / sendDuration.Seconds()
		fmt.Printf("Ingest throughput:  %.1f req/s\n", rps)
	}
	if batchDuration > 0 && landingCount > 0 {
		fmt.Printf("Batch throughput:   %.1f landings/s\n", float64(landingCount)/batchDuration.Seconds())
	}

	fmt.Printf("\nOveruse detection:\n")
	fmt.Printf("  True positives:   %d\n", m.TruePositives)
	fmt.Printf("  False positives:  %d\n", m.FalsePositives)
	fmt.Printf("  False negatives:  %d\n", m.FalseNegatives)

	precision := 0.0
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	recall := 0.0
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	fmt.Printf("  Precision:        %.3f\n", precision)
	fmt.Printf("  Recall:           %.3f\n", recall)
	fmt.Println()
}
