package auth

import (
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/go-cmp/cmp"

	"storyfeed/internal/feed"
)

var secret = []byte("test-secret")

func TestSessionToken_RoundTrip(t *testing.T) {
	want := feed.Session{
		UserID:      "user-42",
		Role:        "parent",
		DisplayName: "Sam",
		Moderator:   true,
		Online:      true,
	}

	token, err := IssueSessionToken(want, secret, time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}
	got, err := ParseSessionToken(token, secret)
	if err != nil {
		t.Fatalf("ParseSessionToken() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("session mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSessionToken_Rejects(t *testing.T) {
	valid, err := IssueSessionToken(feed.Session{UserID: "u1", Role: "staff"}, secret, time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}
	expired, err := IssueSessionToken(feed.Session{UserID: "u1"}, secret, -time.Minute)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}
	noSubject, err := IssueSessionToken(feed.Session{Role: "staff"}, secret, time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken() error = %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		StandardClaims: jwt.StandardClaims{Subject: "u1"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("signing none token: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret []byte
	}{
		{name: "wrong secret", token: valid, secret: []byte("other")},
		{name: "empty secret", token: valid, secret: nil},
		{name: "expired", token: expired, secret: secret},
		{name: "no subject", token: noSubject, secret: secret},
		{name: "alg none", token: unsigned, secret: secret},
		{name: "garbage", token: "not.a.token", secret: secret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, err := ParseSessionToken(tt.token, tt.secret); err == nil {
				t.Errorf("ParseSessionToken() = %+v, want error", got)
			}
		})
	}
}

func TestIssueSessionToken_EmptySecret(t *testing.T) {
	if _, err := IssueSessionToken(feed.Session{UserID: "u1"}, nil, time.Hour); err == nil {
		t.Error("IssueSessionToken() with empty secret succeeded, want error")
	}
}
