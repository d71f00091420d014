// Command seed fills a running API server with fake doctors, working days and
// appointment bookings for local development.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog/log"
)

var issues = []string{
	"persistent cough", "chest pain", "lower back pain", "migraine",
	"annual checkup", "skin rash", "fever and chills", "sprained ankle",
}

var specialities = []string{
	"general practice", "cardiology", "dermatology", "orthopedics", "neurology",
}

func main() {
	baseURL := flag.String("api", "http://localhost:8080", "API base URL")
	doctors := flag.Int("doctors", 3, "number of doctors to create")
	days := flag.Int("days", 5, "working days per doctor")
	bookings := flag.Int("bookings", 4, "bookings per doctor-day")
	seed := flag.Uint64("seed", 0, "random seed, 0 for time-based")
	flag.Parse()

	if *seed != 0 {
		gofakeit.Seed(*seed)
	}
	client := &http.Client{Timeout: 10 * time.Second}

	for d := 0; d < *doctors; d++ {
		doctorID := seedDoctor(client, *baseURL)
		if doctorID == "" {
			continue
		}
		for day := 0; day < *days; day++ {
			date := time.Now().AddDate(0, 0, day+1).Format("2006-01-02")
			seedDay(client, *baseURL, doctorID, date)
			for b := 0; b < *bookings; b++ {
				seedBooking(client, *baseURL, doctorID, date, b)
			}
		}
	}
	log.Info().Msg("seeding complete")
}

func seedDoctor(client *http.Client, baseURL string) string {
	payload := map[string]interface{}{
		"name":         gofakeit.Name(),
		"email":        gofakeit.Email(),
		"specialities": []string{specialities[gofakeit.Number(0, len(specialities)-1)]},
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := post(client, baseURL+"/api/v1/doctors", payload, &created); err != nil {
		log.Error().Err(err).Msg("failed to create doctor")
		return ""
	}
	log.Info().Str("doctor_id", created.Data.ID).Msg("doctor created")
	return created.Data.ID
}

func seedDay(client *http.Client, baseURL, doctorID, date string) {
	payload := map[string]interface{}{
		"doctor_id": doctorID,
		"date":      date,
		"start":     "09:00",
		"end":       "17:00",
	}
	if err := post(client, baseURL+"/api/v1/schedules", payload, nil); err != nil {
		log.Error().Err(err).Str("date", date).Msg("failed to create schedule")
	}
}

func seedBooking(client *http.Client, baseURL, doctorID, date string, slot int) {
	// Hourly slots from 09:00, 30 minutes each, so bookings never collide.
	start, _ := time.Parse("2006-01-02 15:04", fmt.Sprintf("%s %02d:00", date, 9+slot))
	payload := map[string]interface{}{
		"doctor_id":        doctorID,
		"patient_id":       fmt.Sprintf("patient-%s", gofakeit.LetterN(8)),
		"date_time":        start.Format(time.RFC3339),
		"duration_minutes": 30,
		"issue":            issues[gofakeit.Number(0, len(issues)-1)],
	}
	if err := post(client, baseURL+"/api/v1/appointments", payload, nil); err != nil {
		log.Error().Err(err).Str("date", date).Msg("failed to book appointment")
	}
}

func post(client *http.Client, url string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
