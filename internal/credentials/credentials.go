// SPDX-License-Identifier: AGPL-3.0-only
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	KeyVKToken         = "vk_token"
	KeyTelegramAPIID   = "telegram_api_id"
	KeyTelegramAPIHash = "telegram_api_hash"
	KeyTelegramPhone   = "telegram_phone"
)

var ErrInvalidTelegram = errors.New("telegram credentials are incomplete")

type Telegram struct {
	APIID   int
	APIHash string
	Phone   string
}

// Provider hands out platform credentials. A false second value means the
// credential is not available and the platform has to be skipped.
type Provider interface {
	VKToken() (string, bool)
	Telegram() (Telegram, bool)
}

// ParseTelegram validates the raw stored fields.
func ParseTelegram(apiID, apiHash, phone string) (Telegram, error) {
	apiID = strings.TrimSpace(apiID)
	apiHash = strings.TrimSpace(apiHash)
	phone = strings.TrimSpace(phone)

	if apiID == "" || apiHash == "" || phone == "" {
		return Telegram{}, ErrInvalidTelegram
	}

	id, err := strconv.Atoi(apiID)
	if err != nil || id <= 0 {
		return Telegram{}, fmt.Errorf("telegram api id must be a positive number, got %q", apiID)
	}

	return Telegram{APIID: id, APIHash: apiHash, Phone: phone}, nil
}

// Env overrides another provider with VK_TOKEN and TELEGRAM_API_ID,
// TELEGRAM_API_HASH, TELEGRAM_PHONE. Telegram values from the environment
// are only used when all of them are set.
type Env struct {
	Next   Provider
	Getenv func(string) string
}

func WithEnv(next Provider) *Env {
	return &Env{Next: next, Getenv: os.Getenv}
}

func (e *Env) VKToken() (string, bool) {
	if token := strings.TrimSpace(e.Getenv("VK_TOKEN")); token != "" {
		return token, true
	}
	if e.Next == nil {
		return "", false
	}
	return e.Next.VKToken()
}

func (e *Env) Telegram() (Telegram, bool) {
	creds, err := ParseTelegram(
		e.Getenv("TELEGRAM_API_ID"),
		e.Getenv("TELEGRAM_API_HASH"),
		e.Getenv("TELEGRAM_PHONE"),
	)
	if err == nil {
		return creds, true
	}
	if e.Next == nil {
		return Telegram{}, false
	}
	return e.Next.Telegram()
}
