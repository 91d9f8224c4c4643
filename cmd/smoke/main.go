package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"
)

// Дымовой прогон против работающего API: логин, создание техники, правка
// поля и проверка, что изменение попало в журнал.

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	base := os.Getenv("AUTOPARK_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	email := envOr("AUTOPARK_SMOKE_EMAIL", "admin@autopark.kz")
	password := envOr("AUTOPARK_SMOKE_PASSWORD", "password")

	client := &http.Client{Timeout: 10 * time.Second}

	var login struct {
		Token string `json:"token"`
	}
	call(client, http.MethodPost, base+"/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, http.StatusOK, &login)

	marker := fmt.Sprintf("smoke-%d", rand.Int())
	var asset struct {
		ID      string `json:"id"`
		Version int64  `json:"version"`
	}
	call(client, http.MethodPost, base+"/v1/assets", login.Token, map[string]any{
		"fields": map[string]string{
			"name":      "Smoke rig " + marker,
			"narabotka": "100",
		},
	}, http.StatusCreated, &asset)

	var result struct {
		Changes []struct {
			Field    string `json:"field"`
			OldValue string `json:"old_value"`
			NewValue string `json:"new_value"`
		} `json:"changes"`
	}
	call(client, http.MethodPatch, base+"/v1/assets/"+asset.ID, login.Token, map[string]any{
		"version": asset.Version,
		"fields":  map[string]string{"narabotka": "250"},
	}, http.StatusOK, &result)
	if len(result.Changes) != 1 || result.Changes[0].Field != "narabotka" {
		log.Fatalf("unexpected change set: %+v", result.Changes)
	}

	var logs struct {
		Records []struct {
			Field    string `json:"field"`
			OldValue string `json:"old_value"`
			NewValue string `json:"new_value"`
		} `json:"records"`
		TotalCount int64 `json:"total_count"`
	}
	call(client, http.MethodGet, base+"/v1/assets/"+asset.ID+"/logs", login.Token, nil, http.StatusOK, &logs)
	if logs.TotalCount != 1 || logs.Records[0].OldValue != "100" || logs.Records[0].NewValue != "250" {
		log.Fatalf("change log mismatch: %+v", logs)
	}

	call(client, http.MethodDelete, base+"/v1/assets/"+asset.ID, login.Token, nil, http.StatusOK, nil)

	fmt.Printf("✅ autopark smoke test passed: asset=%s\n", asset.ID)
}

func call(client *http.Client, method, url, token string, body any, wantStatus int, out any) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: marshal: %v", method, url, err)
		}
	}
	req, err := http.NewRequest(method, url, bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		log.Fatalf("%s %s: decode: %v", method, url, err)
	}
	if resp.StatusCode != wantStatus {
		kind := ""
		if env.Error != nil {
			kind = env.Error.Kind + ": " + env.Error.Message
		}
		log.Fatalf("%s %s: status %d, want %d (%s)", method, url, resp.StatusCode, wantStatus, kind)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			log.Fatalf("%s %s: decode data: %v", method, url, err)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
