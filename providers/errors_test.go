package providers

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestLoginErrClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"dial timeout", &net.DNSError{Err: "i/o timeout", IsTimeout: true}, true},
		{"connection dropped", io.EOF, true},
		{"server busy", errors.New("NO [UNAVAILABLE] Temporary authentication failure"), true},
		{"too many connections", errors.New("too many connections from this IP"), true},
		{"credentials rejected", errors.New("NO [AUTHENTICATIONFAILED] Invalid credentials"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := loginErr("user@example.com", tc.err)
			if tc.transient {
				if !IsConnectionError(err) {
					t.Fatalf("expected ConnectionError, got %v", err)
				}
				if IsEmptyRefreshToken(err) {
					t.Fatalf("transient failure must not demand re-auth: %v", err)
				}
			} else if !IsEmptyRefreshToken(err) {
				t.Fatalf("expected EmptyRefreshTokenError, got %v", err)
			}
		})
	}
}

func TestTranslateGmailErrStatuses(t *testing.T) {
	notFound := &MessageNotFoundError{RemoteID: "m1"}
	cases := []struct {
		name  string
		code  int
		check func(error) bool
	}{
		{"unauthorized", 401, IsEmptyRefreshToken},
		{"forbidden", 403, IsEmptyRefreshToken},
		{"not found", 404, IsMessageNotFound},
		{"rate limited", 429, IsConnectionError},
		{"server error", 503, IsConnectionError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := translateGmailErr("fetch", &googleapi.Error{Code: tc.code}, notFound)
			if !tc.check(err) {
				t.Fatalf("status %d mapped to %v", tc.code, err)
			}
		})
	}

	var ue *UnexpectedError
	err := translateGmailErr("fetch", &googleapi.Error{Code: 400}, notFound)
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnexpectedError for status 400, got %v", err)
	}
}

func TestOutlookRetryableStatuses(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c := &outlookClient{http: srv.Client(), token: "t", base: srv.URL}
		_, err := c.ListFolders(context.Background())
		srv.Close()

		if !IsConnectionError(err) {
			t.Fatalf("status %d: expected ConnectionError, got %v", status, err)
		}
		if IsEmptyRefreshToken(err) {
			t.Fatalf("status %d must not demand re-auth: %v", status, err)
		}
	}
}
