package external

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tipkoro/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestSignAdminPayload(t *testing.T) {
	now := time.Unix(1700000000, 0)
	got := SignAdminPayload([]byte(`{"a":1}`), "s3cret", now)

	mac := hmac.New(sha256.New, []byte("s3cret"))
	mac.Write([]byte(`1700000000.{"a":1}`))
	assert.Equal(t, "t=1700000000,v1="+hex.EncodeToString(mac.Sum(nil)), got)
}

func TestHTTPAdminNotifier_Notify(t *testing.T) {
	var body []byte
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sig = r.Header.Get(AdminSignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewHTTPAdminNotifierWithBase(newTestBase(RetryPolicy{}), HTTPAdminNotifierConfig{URL: srv.URL, Secret: "s3cret", Logger: discardLogger()})
	n.clock = fixedClock{time.Unix(1700000000, 0)}

	ev := types.AdminEvent{Event: types.AdminEventPaymentCompleted, Timestamp: time.Unix(1700000000, 0).UTC(), Data: map[string]any{"transaction_id": "t1"}}
	require.NoError(t, n.Notify(context.Background(), ev))

	var decoded types.AdminEvent
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "payment.completed", decoded.Event)
	assert.Equal(t, SignAdminPayload(body, "s3cret", time.Unix(1700000000, 0)), sig)
}

func TestHTTPAdminNotifier_NoSecretNoSignature(t *testing.T) {
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(AdminSignatureHeader)
	}))
	defer srv.Close()

	n := NewHTTPAdminNotifierWithBase(newTestBase(RetryPolicy{}), HTTPAdminNotifierConfig{URL: srv.URL, Logger: discardLogger()})
	require.NoError(t, n.Notify(context.Background(), types.AdminEvent{Event: "x"}))
	assert.Empty(t, sig)
}

func TestHTTPAdminNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewHTTPAdminNotifierWithBase(newTestBase(RetryPolicy{}), HTTPAdminNotifierConfig{URL: srv.URL, Logger: discardLogger()})
	err := n.Notify(context.Background(), types.AdminEvent{Event: "x"})
	requireAppCode(t, err, types.ErrCodeUpstreamAdminSink)
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSAdminPublisher_Notify(t *testing.T) {
	client := &fakeSQS{}
	p := NewSQSAdminPublisher(client, "https://sqs.ap-south-1.amazonaws.com/1/admin", discardLogger())

	require.NoError(t, p.Notify(context.Background(), types.AdminEvent{Event: types.AdminEventSignupCompleted, Data: map[string]any{"username": "rahim"}}))

	require.Len(t, client.inputs, 1)
	assert.Equal(t, "https://sqs.ap-south-1.amazonaws.com/1/admin", *client.inputs[0].QueueUrl)
	assert.True(t, strings.Contains(*client.inputs[0].MessageBody, `"event":"signup.completed"`))
}

func TestSQSAdminPublisher_SendFailure(t *testing.T) {
	p := NewSQSAdminPublisher(&fakeSQS{err: errors.New("denied")}, "q", discardLogger())
	err := p.Notify(context.Background(), types.AdminEvent{Event: "x"})
	requireAppCode(t, err, types.ErrCodeUpstreamAdminSink)
	assert.Contains(t, fmt.Sprint(errors.Unwrap(err)), "denied")
}

func TestNoopAdminNotifier(t *testing.T) {
	assert.NoError(t, NewNoopAdminNotifier(nil).Notify(context.Background(), types.AdminEvent{Event: "x"}))
}
