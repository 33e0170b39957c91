package turnstile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taxEvents/internal/config"

	"github.com/go-resty/resty/v2"
)

// ErrMissingToken возвращается, если проверка включена, а токена нет.
var ErrMissingToken = errors.New("bot protection token is required")

type verifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
	Hostname   string   `json:"hostname"`
}

// Verifier проверяет токены Cloudflare Turnstile. Пустой секрет отключает проверку.
type Verifier struct {
	log       *slog.Logger
	client    *resty.Client
	secret    string
	verifyURL string
}

// New создаёт новый экземпляр Verifier.
func New(log *slog.Logger, cfg config.TurnstileConfig) *Verifier {
	return &Verifier{
		log:       log,
		client:    resty.New().SetTimeout(10 * time.Second),
		secret:    cfg.Secret,
		verifyURL: cfg.VerifyURL,
	}
}

func (v *Verifier) Enabled() bool {
	return v.secret != ""
}

// Verify сообщает, является ли token верным ответом на проверку для remoteIP.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	op := "turnstile.Verify()"

	if !v.Enabled() {
		return true, nil
	}
	if strings.TrimSpace(token) == "" {
		return false, ErrMissingToken
	}

	form := map[string]string{
		"secret":   v.secret,
		"response": token,
	}
	if remoteIP != "" {
		form["remoteip"] = remoteIP
	}

	var body verifyResponse
	resp, err := v.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&body).
		Post(v.verifyURL)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("%s: siteverify answered %d", op, resp.StatusCode())
	}

	if !body.Success {
		v.log.Info("turnstile token rejected",
			slog.String("op", op),
			slog.String("codes", strings.Join(body.ErrorCodes, ",")),
		)
	}
	return body.Success, nil
}
