// Package atrium talks to the Atrium amenity booking API: it submits court
// reservations and exchanges OAuth refresh tokens.
package atrium

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/court-scheduler/internal/domain/reservation"
	"github.com/example/court-scheduler/internal/internaltypes"
)

const (
	DefaultBaseURL    = "https://api.atriumapp.co"
	DefaultAuthURL    = "https://auth.atriumapp.co/realms/my-tfc/protocol/openid-connect/token"
	DefaultClientID   = "my-tfc"
	DefaultOccupantID = "133055"

	// Upstream expects local civil time with an explicit offset.
	timeLayout = "2006-01-02T15:04:05-07:00"
)

type Config struct {
	BaseURL    string
	AuthURL    string
	ClientID   string
	OccupantID string
	// RatePerSec limits outbound submissions; bursts of one.
	RatePerSec float64
	Timeout    time.Duration
	Location   *time.Location
}

// Client implements reservation.Submitter and credential.Refresher.
type Client struct {
	hc      *http.Client
	cfg     Config
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

func New(cfg Config, log *zap.SugaredLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.OccupantID == "" {
		cfg.OccupantID = DefaultOccupantID
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		hc: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &loggingTransport{next: http.DefaultTransport, log: log},
		},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		log:     log,
	}
}

type bookingPayload struct {
	AmenityTypeID          string `json:"amenity_type_id"`
	StartTime              string `json:"start_time"`
	EndTime                string `json:"end_time"`
	AmenityID              int    `json:"amenity_id"`
	Guests                 string `json:"guests"`
	AmenityReservationType string `json:"amenity_reservation_type"`
}

func (c *Client) reservationsURL() string {
	return fmt.Sprintf("%s/api/v1/my/occupants/%s/amenity-reservations/", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.OccupantID)
}

// Submit books one court slot. See reservation.Submitter for the error marks.
func (c *Client) Submit(ctx context.Context, req reservation.Request, accessToken string) error {
	amenity, ok := reservation.Courts[req.ResourceID]
	if !ok {
		return internaltypes.Mark(internaltypes.Configf("court_id", req.ResourceID, "unknown court"), internaltypes.ErrDefinitive)
	}
	body, err := json.Marshal(bookingPayload{
		AmenityTypeID:          "10",
		StartTime:              req.Start.In(c.cfg.Location).Format(timeLayout),
		EndTime:                req.End.In(c.cfg.Location).Format(timeLayout),
		AmenityID:              amenity,
		Guests:                 "1",
		AmenityReservationType: "TR",
	})
	if err != nil {
		return internaltypes.Mark(internaltypes.Wrap(err, "encode booking"), internaltypes.ErrDefinitive)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return internaltypes.Mark(internaltypes.Wrap(err, "submit rate limit"), internaltypes.ErrTransient)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, c.reservationsURL(), "application/json", map[string]string{
		"Authorization": "Bearer " + accessToken,
		"X-Request-ID":  req.JobID,
	}, body)
	if err != nil {
		return internaltypes.Mark(internaltypes.Wrap(err, "submit booking"), internaltypes.ErrTransient)
	}
	return classify(status, respBody)
}

// classify maps an HTTP status to the error taxonomy. nil means accepted.
func classify(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return internaltypes.Mark(internaltypes.Newf("booking rejected token (status=%d)", status), internaltypes.ErrUnauthorized)
	case status == http.StatusRequestTimeout, status == http.StatusTooEarly,
		status == http.StatusTooManyRequests, status >= 500:
		return internaltypes.Mark(internaltypes.Newf("booking unavailable (status=%d)", status), internaltypes.ErrTransient)
	default:
		if msg := apiMessage(body); msg != "" {
			return internaltypes.Mark(internaltypes.Newf("booking rejected: %s (status=%d)", msg, status), internaltypes.ErrDefinitive)
		}
		return internaltypes.Mark(internaltypes.Newf("booking rejected (status=%d)", status), internaltypes.ErrDefinitive)
	}
}

// apiMessage pulls a human readable reason out of an error body.
func apiMessage(body []byte) string {
	var r struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &r) != nil {
		return ""
	}
	for _, s := range []string{r.Detail, r.Message, r.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (c *Client) do(ctx context.Context, method, rawURL, contentType string, headers map[string]string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}
