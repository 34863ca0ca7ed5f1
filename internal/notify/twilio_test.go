package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTwilioSMSChannel_Send(t *testing.T) {
	var gotPath, gotTo, gotBody, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		require.NoError(t, r.ParseForm())
		gotTo = r.PostForm.Get("To")
		gotBody = r.PostForm.Get("Body")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	ch := NewTwilioSMSChannel(srv.URL, "AC1", "secret", "+15550000", zap.NewNop())
	err := ch.Send(context.Background(), "+15551234", Message{Body: "help"})

	require.NoError(t, err)
	assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", gotPath)
	assert.Equal(t, "AC1", gotUser)
	assert.Equal(t, "+15551234", gotTo)
	assert.Equal(t, "help", gotBody)
}

func TestTwilioSMSChannel_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	ch := NewTwilioSMSChannel(srv.URL, "AC1", "secret", "+15550000", zap.NewNop())
	err := ch.Send(context.Background(), "bogus", Message{Body: "help"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid 'To' Phone Number")
	assert.Contains(t, err.Error(), "21211")
}
