package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/marginalia-labs/marginalia/internal/logger"
)

const brevoBaseURL = "https://api.brevo.com/v3"

// EmailSender is the transactional template send used by the digest
// dispatcher; a fake implementation backs the tests and dry runs.
type EmailSender interface {
	SendTemplate(ctx context.Context, toEmail, toName string, templateID int64, params interface{}) (messageID string, err error)
}

// BrevoClient is the Brevo (Sendinblue) transactional email client.
type BrevoClient struct {
	apiKey string
	client *http.Client
}

func NewBrevoClient(apiKey string) *BrevoClient {
	return &BrevoClient{
		apiKey: apiKey,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type brevoSendRequest struct {
	To         []brevoRecipient `json:"to"`
	TemplateID int64            `json:"templateId"`
	Params     interface{}      `json:"params"`
}

type brevoRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoSendResponse struct {
	MessageID string `json:"messageId"`
}

// SendTemplate posts the payload under params to Brevo's transactional
// template API, retrying transient failures with exponential backoff.
func (c *BrevoClient) SendTemplate(
	ctx context.Context, toEmail, toName string, templateID int64, params interface{},
) (string, error) {
	body, err := json.Marshal(brevoSendRequest{
		To:         []brevoRecipient{{Email: toEmail, Name: toName}},
		TemplateID: templateID,
		Params:     params,
	})
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt <= llmMaxRetries; attempt++ {
		messageID, retryable, err := c.sendOnce(ctx, body)
		if err == nil {
			return messageID, nil
		}
		lastErr = err
		if !retryable || attempt == llmMaxRetries {
			return "", err
		}
		logger.Warnf(ctx, "brevo send retry %d: %v", attempt+1, err)
		if berr := backoff(ctx, attempt); berr != nil {
			return "", berr
		}
	}
	return "", lastErr
}

func (c *BrevoClient) sendOnce(ctx context.Context, body []byte) (messageID string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, brevoBaseURL+"/smtp/email", bytes.NewReader(body))
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", true, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK ||
		resp.StatusCode == http.StatusAccepted:
		var out brevoSendResponse
		if err := json.Unmarshal(respBody, &out); err != nil || out.MessageID == "" {
			return "sent-" + strconv.FormatInt(time.Now().UnixNano(), 36), false, nil
		}
		return out.MessageID, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", true, fmt.Errorf("brevo transient failure %d: %s", resp.StatusCode, respBody)
	default:
		return "", false, fmt.Errorf("brevo send rejected %d: %s", resp.StatusCode, respBody)
	}
}
