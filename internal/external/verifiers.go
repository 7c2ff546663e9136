package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tipkoro/internal/types"
)

// Svix headers used by the identity provider's webhooks.
const (
	HeaderSvixID        = "svix-id"
	HeaderSvixTimestamp = "svix-timestamp"
	HeaderSvixSignature = "svix-signature"
)

const svixTolerance = 5 * time.Minute

var (
	ErrWebhookSecretMissing  = errors.New("webhook signing secret not configured")
	ErrWebhookHeadersMissing = errors.New("missing svix headers")
	ErrWebhookTimestamp      = errors.New("webhook timestamp outside tolerance")
	ErrWebhookSignature      = errors.New("no matching webhook signature")
)

// SvixVerifier checks identity provider webhooks signed the svix way:
// base64(HMAC-SHA256(secret, "<id>.<timestamp>.<body>")) listed as
// space-separated "v1,<sig>" entries. The secret is "whsec_" + base64 key.
type SvixVerifier struct {
	secret types.SecretString
	clock  types.Clock
}

// NewSvixVerifier creates a SvixVerifier.
func NewSvixVerifier(secret types.SecretString) *SvixVerifier {
	return &SvixVerifier{secret: secret, clock: types.RealClock{}}
}

func (v *SvixVerifier) key() ([]byte, error) {
	raw := strings.TrimPrefix(v.secret.Unmask(), "whsec_")
	if raw == "" {
		return nil, ErrWebhookSecretMissing
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding webhook secret: %w", err)
	}
	return key, nil
}

// Verify returns nil when one of the listed signatures matches.
func (v *SvixVerifier) Verify(payload []byte, headers http.Header) error {
	key, err := v.key()
	if err != nil {
		return err
	}

	id := headers.Get(HeaderSvixID)
	ts := headers.Get(HeaderSvixTimestamp)
	sigs := headers.Get(HeaderSvixSignature)
	if id == "" || ts == "" || sigs == "" {
		return ErrWebhookHeadersMissing
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrWebhookTimestamp
	}
	sent := time.Unix(unix, 0)
	now := v.clock.Now()
	if now.Sub(sent) > svixTolerance || sent.Sub(now) > svixTolerance {
		return ErrWebhookTimestamp
	}

	expected := signSvix(key, id, ts, payload)
	for _, entry := range strings.Fields(sigs) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return nil
		}
	}
	return ErrWebhookSignature
}

func signSvix(key []byte, id, timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

var _ IdentityWebhookVerifier = (*SvixVerifier)(nil)
