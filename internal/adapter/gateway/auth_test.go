package gateway

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"agentverse/internal/domain"
	"agentverse/internal/infra/config"
)

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "secret-123", Name: "studio"}})

	info, err := auth.Authenticate("secret-123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "studio" {
		t.Errorf("Name = %q", info.Name)
	}
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "secret-123", Name: "studio"}})

	_, err := auth.Authenticate("wrong-token")
	if !errors.Is(err, domain.ErrGatewayAuthFailed) {
		t.Errorf("err = %v, want ErrGatewayAuthFailed", err)
	}
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("err = %v, want ErrAuthInvalid", err)
	}
}

func TestStaticTokenAuthSkipsEmptyTokens(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "", Name: "blank"}})

	if _, err := auth.Authenticate(""); err == nil {
		t.Fatal("empty token must not authenticate")
	}
}

func TestOpenAuth(t *testing.T) {
	info, err := OpenAuth{}.Authenticate("")
	if err != nil || info.Name != "anonymous" {
		t.Fatalf("OpenAuth = %v, %v", info, err)
	}
}

func TestRequestToken(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header map[string]string
		want   string
	}{
		{"query", "/x?token=q", nil, "q"},
		{"bearer", "/x", map[string]string{"Authorization": "Bearer b"}, "b"},
		{"basic ignored", "/x", map[string]string{"Authorization": "Basic abc"}, ""},
		{"api key", "/x", map[string]string{"X-API-Key": "k"}, "k"},
		{"query wins", "/x?token=q", map[string]string{"Authorization": "Bearer b"}, "q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			if got := requestToken(r); got != tt.want {
				t.Errorf("requestToken = %q, want %q", got, tt.want)
			}
		})
	}
}
