package synctera

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	domainerrors "github.com/poolcard/poolcard_service/internal/domain/errors"
)

const (
	signatureHeader = "Synctera-Signature"
	timestampHeader = "Synctera-Timestamp"

	// replayWindow bounds how stale a delivery may be before it is refused
	replayWindow = 5 * time.Minute
)

// VerifyWebhook authenticates a delivery: the signature header holds one or
// more hex HMAC-SHA256 values (comma separated, current plus rotated
// secrets) computed over "<timestamp>.<raw body>". The timestamp must be
// within the replay window.
func (a *Adapter) VerifyWebhook(header http.Header, body []byte) error {
	timestampRaw := header.Get(timestampHeader)
	if timestampRaw == "" {
		return invalidSignature("missing timestamp header")
	}

	unix, err := strconv.ParseInt(timestampRaw, 10, 64)
	if err != nil {
		return invalidSignature("malformed timestamp header")
	}

	age := time.Since(time.Unix(unix, 0))
	if age > replayWindow || age < -replayWindow {
		return invalidSignature(fmt.Sprintf("timestamp outside replay window: %s", age))
	}

	signatures := header.Get(signatureHeader)
	if signatures == "" {
		return invalidSignature("missing signature header")
	}

	expected := computeSignature(a.webhookSecret, timestampRaw, body)
	for _, candidate := range strings.Split(signatures, ",") {
		if hmac.Equal([]byte(strings.TrimSpace(candidate)), []byte(expected)) {
			return nil
		}
	}

	return invalidSignature("no signature matched")
}

func computeSignature(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func invalidSignature(reason string) error {
	return domainerrors.NewDomainError(domainerrors.ErrInvalidSignature, "INVALID_SIGNATURE", reason)
}

func parseEnvelope(body []byte) (*webhookEnvelope, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, domainerrors.ValidationError("payload", fmt.Sprintf("malformed webhook payload: %v", err))
	}
	if envelope.ID == "" {
		return nil, domainerrors.ValidationError("id", "webhook event id is required")
	}
	return &envelope, nil
}

func decode[T any](raw json.RawMessage) (*T, error) {
	var data T
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, domainerrors.ValidationError("data", fmt.Sprintf("malformed event data: %v", err))
	}
	return &data, nil
}
