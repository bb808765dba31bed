package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/chatsuite/backend/internal/apperrors"
	"go.uber.org/zap"
)

// SendResult is the provider's acknowledgment of an accepted message.
type SendResult struct {
	MessageID string
}

// TemplateComponent mirrors the Cloud API template component payload.
type TemplateComponent struct {
	Type       string              `json:"type"` // header / body / button
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

type TemplateParameter struct {
	Type     string     `json:"type"` // text / image / document / video
	Text     string     `json:"text,omitempty"`
	Image    *MediaLink `json:"image,omitempty"`
	Document *MediaLink `json:"document,omitempty"`
	Video    *MediaLink `json:"video,omitempty"`
}

type MediaLink struct {
	Link     string `json:"link"`
	Filename string `json:"filename,omitempty"`
}

// WhatsAppClient talks to the WhatsApp Cloud API.
type WhatsAppClient struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
	log           *zap.Logger
}

func NewWhatsAppClient(baseURL, accessToken, phoneNumberID string, timeout time.Duration, log *zap.Logger) *WhatsAppClient {
	return &WhatsAppClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type sendRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Template         *templatePayload `json:"template,omitempty"`
	Text             *textPayload     `json:"text,omitempty"`
	Image            *MediaLink       `json:"image,omitempty"`
	Document         *MediaLink       `json:"document,omitempty"`
}

type templatePayload struct {
	Name       string              `json:"name"`
	Language   languagePayload     `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type languagePayload struct {
	Code string `json:"code"`
}

type textPayload struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

func (c *WhatsAppClient) SendTemplate(ctx context.Context, to, template, languageCode string, components []TemplateComponent) (*SendResult, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: &templatePayload{
			Name:       template,
			Language:   languagePayload{Code: languageCode},
			Components: components,
		},
	})
}

func (c *WhatsAppClient) SendText(ctx context.Context, to, body string) (*SendResult, error) {
	return c.send(ctx, sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textPayload{Body: body},
	})
}

func (c *WhatsAppClient) SendMedia(ctx context.Context, to, mediaType string, media MediaLink) (*SendResult, error) {
	req := sendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             mediaType,
	}
	switch mediaType {
	case "image":
		req.Image = &media
	case "document":
		req.Document = &media
	default:
		return nil, fmt.Errorf("unsupported media type %q", mediaType)
	}
	return c.send(ctx, req)
}

func (c *WhatsAppClient) send(ctx context.Context, payload sendRequest) (*SendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, &apperrors.ProviderError{Code: 0, Reason: apperrors.ReasonProviderTimeout}
		}
		return nil, &apperrors.ProviderError{Code: 0, Reason: apperrors.ReasonProviderDown}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &apperrors.ProviderError{Code: resp.StatusCode, Reason: apperrors.ReasonProviderDown}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && len(parsed.Messages) > 0 {
		return &SendResult{MessageID: parsed.Messages[0].ID}, nil
	}

	code := resp.StatusCode
	if parsed.Error != nil {
		code = parsed.Error.Code
		c.log.Debug("provider rejected send",
			zap.Int("code", parsed.Error.Code),
			zap.String("message", parsed.Error.Message),
		)
	}
	return nil, &apperrors.ProviderError{Code: code, Reason: providerReason(code, resp.StatusCode)}
}

// providerReason folds the provider's error codes into the small stable set
// of user-facing reasons recorded in the ledger.
func providerReason(code, httpStatus int) string {
	switch code {
	case 130429, 80007, 4: // throughput / app rate limits
		return apperrors.ReasonRateLimited
	case 132001, 132000: // template does not exist / param mismatch
		return apperrors.ReasonTemplateMissing
	}
	if httpStatus >= 500 {
		return apperrors.ReasonProviderDown
	}
	return apperrors.ReasonProviderRejected
}
