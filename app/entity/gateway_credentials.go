package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidGatewayConfig = errors.New("invalid gateway config")

// GatewayCredentials is the per-gateway credential bundle stored on a merchant.
// Exactly one variant exists per Gateway.
type GatewayCredentials interface {
	Gateway() Gateway
	Validate() error
	Masked() map[string]interface{}
	// WithSecretKey returns a copy whose server-side secret is replaced.
	WithSecretKey(key string) GatewayCredentials
}

type PayUCredentials struct {
	APIKey       string `json:"apiKey"`
	APILogin     string `json:"apiLogin"`
	MerchantID   string `json:"merchantId"`
	AccountID    string `json:"accountId"`
	IsProduction bool   `json:"isProduction"`
}

func (c *PayUCredentials) Gateway() Gateway { return GatewayPayU }

func (c *PayUCredentials) Validate() error {
	return requireFields(map[string]string{
		"apiKey":     c.APIKey,
		"apiLogin":   c.APILogin,
		"merchantId": c.MerchantID,
		"accountId":  c.AccountID,
	})
}

func (c *PayUCredentials) Masked() map[string]interface{} {
	return map[string]interface{}{
		"apiKey":       MaskSecret(c.APIKey),
		"apiLogin":     MaskSecret(c.APILogin),
		"merchantId":   c.MerchantID,
		"accountId":    c.AccountID,
		"isProduction": c.IsProduction,
	}
}

func (c *PayUCredentials) WithSecretKey(key string) GatewayCredentials {
	cp := *c
	cp.APIKey = key
	return &cp
}

type WompiCredentials struct {
	PublicKey    string `json:"publicKey"`
	PrivateKey   string `json:"privateKey"`
	EventsSecret string `json:"eventsSecret"`
	IsProduction bool   `json:"isProduction"`
}

func (c *WompiCredentials) Gateway() Gateway { return GatewayWompi }

func (c *WompiCredentials) Validate() error {
	return requireFields(map[string]string{
		"publicKey":    c.PublicKey,
		"privateKey":   c.PrivateKey,
		"eventsSecret": c.EventsSecret,
	})
}

func (c *WompiCredentials) Masked() map[string]interface{} {
	return map[string]interface{}{
		"publicKey":    c.PublicKey,
		"privateKey":   MaskSecret(c.PrivateKey),
		"eventsSecret": MaskSecret(c.EventsSecret),
		"isProduction": c.IsProduction,
	}
}

func (c *WompiCredentials) WithSecretKey(key string) GatewayCredentials {
	cp := *c
	cp.PrivateKey = key
	return &cp
}

type MercadoPagoCredentials struct {
	AccessToken   string `json:"accessToken"`
	WebhookSecret string `json:"webhookSecret"`
	IsProduction  bool   `json:"isProduction"`
}

func (c *MercadoPagoCredentials) Gateway() Gateway { return GatewayMercadoPago }

func (c *MercadoPagoCredentials) Validate() error {
	return requireFields(map[string]string{
		"accessToken": c.AccessToken,
	})
}

func (c *MercadoPagoCredentials) Masked() map[string]interface{} {
	return map[string]interface{}{
		"accessToken":   MaskSecret(c.AccessToken),
		"webhookSecret": MaskSecret(c.WebhookSecret),
		"isProduction":  c.IsProduction,
	}
}

func (c *MercadoPagoCredentials) WithSecretKey(key string) GatewayCredentials {
	cp := *c
	cp.AccessToken = key
	return &cp
}

// DecodeGatewayCredentials parses and validates a raw config for the given gateway.
// Used on the write path.
func DecodeGatewayCredentials(gateway Gateway, raw []byte) (GatewayCredentials, error) {
	creds, err := LoadGatewayCredentials(gateway, raw)
	if err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

// LoadGatewayCredentials parses a stored config without re-validating it.
func LoadGatewayCredentials(gateway Gateway, raw []byte) (GatewayCredentials, error) {
	var creds GatewayCredentials
	switch gateway {
	case GatewayPayU:
		creds = &PayUCredentials{}
	case GatewayWompi:
		creds = &WompiCredentials{}
	case GatewayMercadoPago:
		creds = &MercadoPagoCredentials{}
	default:
		return nil, fmt.Errorf("%w: unknown gateway %q", ErrInvalidGatewayConfig, gateway)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty config", ErrInvalidGatewayConfig)
	}
	if err := json.Unmarshal(raw, creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGatewayConfig, err)
	}
	return creds, nil
}

func EncodeGatewayCredentials(creds GatewayCredentials) ([]byte, error) {
	if creds == nil {
		return nil, ErrInvalidGatewayConfig
	}
	return json.Marshal(creds)
}

func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

func requireFields(fields map[string]string) error {
	missing := make([]string, 0)
	for _, name := range []string{"apiKey", "apiLogin", "merchantId", "accountId", "publicKey", "privateKey", "eventsSecret", "accessToken"} {
		value, ok := fields[name]
		if ok && strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidGatewayConfig, strings.Join(missing, ", "))
	}
	return nil
}
