//go:build ignore

// Manual smoke script: drives one quote through a running server and prints
// provider states until the calculation settles.
//
//	go run test/start_quote.go -server http://localhost:8080 -country Germany -salary 60000 -currency EUR
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"hirequote-cloud/quote"
)

type statusSnapshot struct {
	QuoteID         string                       `json:"quote_id"`
	Status          string                       `json:"status"`
	Loading         bool                         `json:"loading"`
	CurrentProvider string                       `json:"current_provider"`
	ProviderStates  map[string]map[string]string `json:"provider_states"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "cloud server base URL")
	country := flag.String("country", "Germany", "hire country")
	salary := flag.String("salary", "60000", "annual salary")
	currency := flag.String("currency", "EUR", "salary currency")
	client := flag.String("client", "United States", "client country")
	flag.Parse()

	form := quote.FormData{
		Country:       *country,
		BaseSalary:    *salary,
		Currency:      *currency,
		ClientCountry: *client,
		Age:           30,
	}
	body, err := json.Marshal(form)
	if err != nil {
		log.Fatalf("marshal form: %v", err)
	}

	resp, err := http.Post(*server+"/api/quotes", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("start quote: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		log.Fatalf("start quote: unexpected status %s", resp.Status)
	}

	var started struct {
		QuoteID string `json:"quote_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		log.Fatalf("decode start response: %v", err)
	}
	fmt.Printf("quote %s started\n", started.QuoteID)

	for {
		time.Sleep(500 * time.Millisecond)

		st, err := fetchStatus(*server, started.QuoteID)
		if err != nil {
			log.Fatalf("fetch status: %v", err)
		}

		fmt.Printf("status=%s current=%s loading=%v\n", st.Status, st.CurrentProvider, st.Loading)
		for provider, state := range st.ProviderStates {
			line := fmt.Sprintf("  %-12s %s", provider, state["status"])
			if state["error"] != "" {
				line += " error=" + state["error"]
			}
			if state["enhancementError"] != "" {
				line += " enhancement=" + state["enhancementError"]
			}
			fmt.Println(line)
		}

		if !st.Loading {
			break
		}
	}

	record, err := http.Get(*server + "/api/quotes/" + started.QuoteID)
	if err != nil {
		log.Fatalf("fetch record: %v", err)
	}
	defer record.Body.Close()

	var data quote.QuoteData
	if err := json.NewDecoder(record.Body).Decode(&data); err != nil {
		log.Fatalf("decode record: %v", err)
	}

	fmt.Printf("\nrecord status: %s\n", data.Status)
	for provider, q := range data.Quotes {
		fmt.Printf("%-12s %8.2f %s/month (enhanced=%v, %d items, %d statutory)\n",
			provider, q.MonthlyTotal, q.Currency, q.Enhanced, len(q.Items), len(q.Statutory))
	}
}

func fetchStatus(server, id string) (statusSnapshot, error) {
	resp, err := http.Get(server + "/api/quotes/" + id + "/status")
	if err != nil {
		return statusSnapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusSnapshot{}, fmt.Errorf("status endpoint returned %s", resp.Status)
	}

	var st statusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return statusSnapshot{}, err
	}
	return st, nil
}
