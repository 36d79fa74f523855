package swarm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

// newHive serves a minimal Hive lookalike: form login issuing a session
// cookie, and a messages endpoint requiring it.
func newHive(t *testing.T, messagesJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "viu" || r.PostForm.Get("password") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "session-1"})
	})
	mux.HandleFunc("GET /api/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("JSESSIONID"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "0", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, messagesJSON)
	})
	return httptest.NewServer(mux)
}

func newTestClient(baseURL, username, password string) *Client {
	return NewClient(baseURL, username, password, 5*time.Second, slog.Default())
}

func TestLoginAndFetch(t *testing.T) {
	payload := "MAYA,1,2023,7,12,14,13.2"
	srv := newHive(t, fmt.Sprintf(
		`[{"packetId":42,"data":"%s","hiveRxTime":"2023-07-12T15:10:04"}]`, b64(payload)))
	defer srv.Close()

	c := newTestClient(srv.URL, "viu", "secret")
	require.NoError(t, c.Login(context.Background()))

	msgs, err := c.FetchMessages(context.Background(), 1000)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].ID)
	assert.Equal(t, payload, msgs[0].Payload)
	assert.Equal(t, time.Date(2023, 7, 12, 15, 10, 4, 0, time.UTC), msgs[0].ReceiptTime)
}

func TestLogin_BadCredentials(t *testing.T) {
	srv := newHive(t, `[]`)
	defer srv.Close()

	c := newTestClient(srv.URL, "viu", "wrong")
	err := c.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestFetchMessages_WithoutSession(t *testing.T) {
	srv := newHive(t, `[]`)
	defer srv.Close()

	c := newTestClient(srv.URL, "viu", "secret")
	_, err := c.FetchMessages(context.Background(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestFetchMessages_SkipsEmptyAndUndecodable(t *testing.T) {
	srv := newHive(t, fmt.Sprintf(
		`[{"packetId":1,"data":""},{"packetId":2,"data":"%%%%not-base64"},{"packetId":3,"data":"%s"}]`,
		b64("S9,2023,11,4")))
	defer srv.Close()

	c := newTestClient(srv.URL, "viu", "secret")
	require.NoError(t, c.Login(context.Background()))

	msgs, err := c.FetchMessages(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(3), msgs[0].ID)
}

func TestFetchMessages_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, "viu", "secret")
	_, err := c.FetchMessages(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestParseRxTime(t *testing.T) {
	assert.Equal(t, time.Date(2023, 7, 12, 15, 10, 4, 0, time.UTC),
		parseRxTime("2023-07-12T15:10:04"))
	assert.True(t, parseRxTime("garbage").IsZero())
}
