package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serverAddress = "http://localhost:8080"

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// apiResponse mirrors the server's response envelope
type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// simulationClient handles HTTP communication with the brokerage API
type simulationClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// do sends a JSON request and decodes the enveloped response data into out
func (sc *simulationClient) do(method, path string, body interface{}, out interface{}, headers map[string]string) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sc.token != "" {
		req.Header.Set("Authorization", "Bearer "+sc.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	if !envelope.Success {
		msg := "unknown error"
		if envelope.Error != nil {
			msg = envelope.Error.Message
		}
		return fmt.Errorf("%s %s: %s (HTTP %d)", method, path, msg, resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(envelope.Data, out)
	}
	return nil
}

type tokenData struct {
	Token string `json:"jwt_token"`
	User  struct {
		ID uint `json:"id"`
	} `json:"user"`
}

type tradeData struct {
	ID                uint   `json:"id"`
	Status            string `json:"status"`
	Amount            string `json:"amount"`
	CopiedFromTradeID *uint  `json:"copied_from_trade_id"`
}

type transactionData struct {
	ID     uint   `json:"id"`
	Status string `json:"status"`
}

// account is a simulated participant
type account struct {
	email  string
	client *simulationClient
	userID uint
}

func register(email, password string) (*account, error) {
	sc := newSimulationClient()
	if err := sc.do("POST", "/api/v1/auth/register", map[string]string{
		"email": email, "password": password, "first_name": "Sim",
	}, nil, nil); err != nil {
		return nil, err
	}

	var token tokenData
	if err := sc.do("POST", "/api/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}, &token, nil); err != nil {
		return nil, err
	}
	sc.token = token.Token

	return &account{email: email, client: sc, userID: token.User.ID}, nil
}

func loginAdmin() (*simulationClient, error) {
	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@tradecopy.local"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "admin-password"
	}

	sc := newSimulationClient()
	var token tokenData
	if err := sc.do("POST", "/api/v1/auth/login", map[string]string{
		"email": email, "password": password,
	}, &token, nil); err != nil {
		return nil, err
	}
	sc.token = token.Token
	return sc, nil
}

// fund requests a deposit for the account and has the admin complete it
func fund(admin *simulationClient, acct *account, amount string) error {
	var txn transactionData
	if err := acct.client.do("POST", "/api/v1/transactions/deposit", map[string]string{
		"amount": amount, "method": "bank_transfer",
	}, &txn, nil); err != nil {
		return err
	}
	return admin.do("POST", fmt.Sprintf("/api/v1/admin/transactions/%d/complete", txn.ID), nil, nil, nil)
}

func main() {
	run := uuid.New().String()[:8]

	admin, err := loginAdmin()
	if err != nil {
		log.Fatal().Err(err).Msg("admin login failed")
	}

	trader, err := register(fmt.Sprintf("trader-%s@example.com", run), "password-123")
	if err != nil {
		log.Fatal().Err(err).Msg("trader registration failed")
	}
	follower1, err := register(fmt.Sprintf("follower1-%s@example.com", run), "password-123")
	if err != nil {
		log.Fatal().Err(err).Msg("follower registration failed")
	}
	follower2, err := register(fmt.Sprintf("follower2-%s@example.com", run), "password-123")
	if err != nil {
		log.Fatal().Err(err).Msg("follower registration failed")
	}

	for _, acct := range []*account{trader, follower1, follower2} {
		if err := fund(admin, acct, "50000"); err != nil {
			log.Fatal().Err(err).Str("email", acct.email).Msg("funding failed")
		}
		log.Info().Str("email", acct.email).Msg("account funded")
	}

	// Trader opts in to be copied
	var traderProfile struct {
		ID uint `json:"id"`
	}
	if err := trader.client.do("POST", "/api/v1/copytrading/traders", map[string]string{
		"display_name": "Sim Trader " + run, "strategy": "momentum",
	}, &traderProfile, nil); err != nil {
		log.Fatal().Err(err).Msg("become trader failed")
	}

	// Followers copy with 50% and 25% allocations
	if err := follower1.client.do("POST", "/api/v1/copytrading/follow", map[string]interface{}{
		"trader_id": traderProfile.ID, "allocation_percentage": "50",
	}, nil, nil); err != nil {
		log.Fatal().Err(err).Msg("follow failed")
	}
	if err := follower2.client.do("POST", "/api/v1/copytrading/follow", map[string]interface{}{
		"trader_id": traderProfile.ID, "allocation_percentage": "25",
	}, nil, nil); err != nil {
		log.Fatal().Err(err).Msg("follow failed")
	}

	// Trader buys 10 BTC-equivalent units of asset 1
	var trade tradeData
	if err := trader.client.do("POST", "/api/v1/trades", map[string]interface{}{
		"asset_id": 1, "side": "buy", "amount": "10", "price": "100",
	}, &trade, map[string]string{"Idempotency-Key": uuid.New().String()}); err != nil {
		log.Fatal().Err(err).Msg("order placement failed")
	}
	log.Info().Uint("trade_id", trade.ID).Msg("order placed")

	if err := admin.do("POST", fmt.Sprintf("/api/v1/admin/trades/%d/execute", trade.ID), nil, &trade, nil); err != nil {
		log.Fatal().Err(err).Msg("trade execution failed")
	}
	log.Info().Str("status", trade.Status).Msg("original trade executed")

	// Fan-out check: each follower should now hold one pending copy
	for _, acct := range []*account{follower1, follower2} {
		var trades []tradeData
		if err := acct.client.do("GET", "/api/v1/trades", nil, &trades, nil); err != nil {
			log.Fatal().Err(err).Msg("trade listing failed")
		}
		for _, t := range trades {
			if t.CopiedFromTradeID != nil && *t.CopiedFromTradeID == trade.ID {
				log.Info().
					Str("email", acct.email).
					Uint("copy_trade_id", t.ID).
					Str("amount", t.Amount).
					Str("status", t.Status).
					Msg("copy trade created")

				// Execute the copy in a later, independent pass
				if err := admin.do("POST", fmt.Sprintf("/api/v1/admin/trades/%d/execute", t.ID), nil, nil, nil); err != nil {
					log.Error().Err(err).Msg("copy execution failed")
				}
			}
		}
	}

	// One follower takes an investment plan stake
	if err := follower1.client.do("POST", "/api/v1/investments", map[string]interface{}{
		"plan_id": 1, "amount": "500",
	}, nil, nil); err != nil {
		log.Fatal().Err(err).Msg("investment failed")
	}

	// Trader withdraws part of the sale-free balance
	var withdrawal transactionData
	if err := trader.client.do("POST", "/api/v1/transactions/withdraw", map[string]string{
		"amount": "1000", "method": "bank_transfer",
	}, &withdrawal, nil); err != nil {
		log.Fatal().Err(err).Msg("withdrawal request failed")
	}
	if err := admin.do("POST", fmt.Sprintf("/api/v1/admin/transactions/%d/complete", withdrawal.ID), nil, nil, nil); err != nil {
		log.Fatal().Err(err).Msg("withdrawal completion failed")
	}

	log.Info().Msg("simulation completed")
}
