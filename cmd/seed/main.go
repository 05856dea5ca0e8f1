package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"
)

// Posts a handful of sample ideas so a fresh wall isn't empty during setup.
func main() {
	var (
		api = flag.String("api", "http://127.0.0.1:8000", "server base URL")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[seed] ", log.LstdFlags)

	pin := os.Getenv("EVENT_PIN")
	if pin == "" {
		logger.Fatalf("EVENT_PIN not set")
	}

	samples := []struct{ author, text string }{
		{"Avery", "AI-generated recap email after every session"},
		{"Jordan", "Live transcription wall for the hallway track"},
		{"Kai", "Matchmaking between attendees with similar questions"},
		{"Riley", "Auto-translate the Q&A into attendees' languages"},
	}

	client := &http.Client{Timeout: 5 * time.Second}
	for _, s := range samples {
		form := url.Values{"author": {s.author}, "text": {s.text}, "pin": {pin}}
		resp, err := client.PostForm(*api+"/ideas", form)
		if err != nil {
			logger.Fatalf("post: %v", err)
		}
		var body struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
			Idea  *struct {
				ID int `json:"id"`
			} `json:"idea"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			resp.Body.Close()
			logger.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
		if !body.OK {
			logger.Fatalf("rejected (%d): %s", resp.StatusCode, body.Error)
		}
		fmt.Printf("seeded #%d %s\n", body.Idea.ID, s.author)
	}
}
