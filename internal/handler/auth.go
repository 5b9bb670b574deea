package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Webhook auth modes.
const (
	AuthModeHMAC   = "hmac"
	AuthModeBearer = "bearer"
)

// WebhookVerifier authenticates webhook deliveries before they reach the
// intake handlers. With no credential configured for the selected mode it
// accepts everything and warns, a development-only allowance.
type WebhookVerifier struct {
	mode        string
	secret      string
	bearerToken string
}

// NewWebhookVerifier creates a verifier for the given mode ("hmac" or
// "bearer") and credentials.
func NewWebhookVerifier(mode, secret, bearerToken string) *WebhookVerifier {
	return &WebhookVerifier{mode: mode, secret: secret, bearerToken: bearerToken}
}

// Verify is the middleware guarding the webhook routes.
func (v *WebhookVerifier) Verify(c *fiber.Ctx) error {
	if v.mode == AuthModeBearer {
		return v.verifyBearer(c)
	}
	return v.verifyHMAC(c)
}

func (v *WebhookVerifier) verifyBearer(c *fiber.Ctx) error {
	if v.bearerToken == "" {
		log.Warn().Msg("no webhook bearer token configured, accepting all webhooks")
		return c.Next()
	}

	token, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(v.bearerToken)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or missing bearer token"})
	}
	return c.Next()
}

// verifyHMAC checks the WooCommerce delivery signature: base64 of the
// HMAC-SHA256 of the raw body under the shared secret.
func (v *WebhookVerifier) verifyHMAC(c *fiber.Ctx) error {
	if v.secret == "" {
		log.Warn().Msg("no webhook secret configured, accepting all webhooks")
		return c.Next()
	}

	header := c.Get("X-WC-Webhook-Signature")
	if header == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing webhook signature"})
	}

	provided, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed webhook signature"})
	}

	mac := hmac.New(sha256.New, []byte(v.secret))
	mac.Write(c.Body())
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "webhook signature mismatch"})
	}
	return c.Next()
}

// AdminAuth guards the admin surface with a static bearer token. An empty
// token disables the guard with a warning, mirroring the webhook dev-mode
// allowance.
func AdminAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			log.Warn().Msg("no admin token configured, accepting all admin requests")
			return c.Next()
		}

		provided, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), []byte(token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or missing admin token"})
		}
		return c.Next()
	}
}
