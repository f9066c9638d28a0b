package signapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kadena-community/cabinet-gateway/types"
)

func TestSign(t *testing.T) {
	cmd := &types.SignCommand{
		Code:      "(coin.transfer \"a\" \"b\" 1.0)",
		EnvData:   json.RawMessage(`{"ks":{"keys":["abc"]}}`),
		Sender:    "a",
		ChainID:   "1",
		NetworkID: "testnet04",
	}

	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/sign", r.URL.Path)
			require.Equal(t, http.MethodPost, r.Method)
			var body map[string]json.RawMessage
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.JSONEq(t, `{"ks":{"keys":["abc"]}}`, string(body["data"]))
			require.JSONEq(t, `{"ks":{"keys":["abc"]}}`, string(body["envData"]))
			require.JSONEq(t, `"a"`, string(body["sender"]))
			_, _ = w.Write([]byte(`{"body":{"cmd":"{}","hash":"h","sigs":[{"sig":"s"}]}}`))
		}))
		defer srv.Close()

		res := NewClient(srv.URL, time.Second).Sign(context.Background(), cmd)
		require.True(t, res.Valid())
		require.Equal(t, types.SignSuccessStatus, res.Status)
		require.Equal(t, "h", res.SignedCmd.Hash)
	})

	t.Run("wallet error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"errors":"user declined"}`))
		}))
		defer srv.Close()

		res := NewClient(srv.URL, time.Second).Sign(context.Background(), cmd)
		require.Equal(t, types.SignFailureStatus, res.Status)
		require.Equal(t, "user declined", *res.Errors)
	})

	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad request", http.StatusBadRequest)
		}))
		defer srv.Close()

		res := NewClient(srv.URL, time.Second).Sign(context.Background(), cmd)
		require.True(t, res.Valid())
		require.Equal(t, types.SignFailureStatus, res.Status)
		require.Contains(t, *res.Errors, "bad request")
	})

	t.Run("daemon down", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		res := NewClient(url, time.Second).Sign(context.Background(), cmd)
		require.True(t, res.Valid())
		require.Equal(t, types.SignFailureStatus, res.Status)
	})

	t.Run("nil command", func(t *testing.T) {
		res := NewClient(DefaultURL, time.Second).Sign(context.Background(), nil)
		require.Equal(t, types.SignFailureStatus, res.Status)
	})
}

func TestAccounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/accounts", r.URL.Path)
		_, _ = w.Write([]byte(`["k:abc","alice"]`))
	}))
	defer srv.Close()

	accounts, err := NewClient(srv.URL, time.Second).Accounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"k:abc", "alice"}, accounts)

	objSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"accounts":[{"account":"bob"}]}`))
	}))
	defer objSrv.Close()
	accounts, err = NewClient(objSrv.URL, time.Second).Accounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"bob"}, accounts)
}

func TestUnreachable(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.NotFoundHandler())
	client := NewClient(srv.URL, time.Second)

	// a 404 still proves the daemon is up
	require.NoError(t, client.Ping(ctx))
	_, err := client.Accounts(ctx)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnreachable)

	srv.Close()
	require.ErrorIs(t, client.Ping(ctx), ErrUnreachable)
	_, err = client.Accounts(ctx)
	require.ErrorIs(t, err, ErrUnreachable)
}
