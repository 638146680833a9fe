package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestValidateURL はURLの静的検証をテストする。
func TestValidateURL(t *testing.T) {
	guard := NewImageGuard(time.Second, false)

	tests := []struct {
		name        string
		url         string
		wantErr     bool
		wantBlocked bool
	}{
		{name: "httpsの公開ホスト", url: "https://cdn.example.com/mouse.png"},
		{name: "httpの公開ホスト", url: "http://images.example.com/kb.jpg"},
		{name: "空URL", url: "", wantErr: true},
		{name: "ftpスキーム", url: "ftp://example.com/a.png", wantErr: true},
		{name: "javascriptスキーム", url: "javascript:alert(1)", wantErr: true},
		{name: "ホストなし", url: "https:///a.png", wantErr: true},
		{name: "ループバックIP", url: "http://127.0.0.1/a.png", wantErr: true, wantBlocked: true},
		{name: "プライベートIP", url: "http://10.1.2.3/a.png", wantErr: true, wantBlocked: true},
		{name: "メタデータIP", url: "http://169.254.169.254/latest", wantErr: true, wantBlocked: true},
		{name: "IPv6ループバック", url: "http://[::1]/a.png", wantErr: true, wantBlocked: true},
		{name: "localhost", url: "http://localhost/a.png", wantErr: true, wantBlocked: true},
		{name: "localhostサブドメイン", url: "http://img.localhost/a.png", wantErr: true, wantBlocked: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
			if got := errors.Is(err, ErrBlockedDestination); got != tt.wantBlocked {
				t.Errorf("ValidateURL(%q) blocked = %v, want %v", tt.url, got, tt.wantBlocked)
			}
		})
	}
}

// TestCheck_DisabledSkipsRequest は無効時にリクエストを送信しないことをテストする。
func TestCheck_DisabledSkipsRequest(t *testing.T) {
	called := false
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return nil, errors.New("should not be called")
	})}
	guard := NewImageGuard(time.Second, false, WithImageHTTPClient(client))

	if err := guard.Check(context.Background(), "https://cdn.example.com/a.png"); err != nil {
		t.Fatalf("無効時は静的検証のみで成功すべき: %v", err)
	}
	if called {
		t.Error("無効時にHTTPリクエストを送信してはならない")
	}
}

// TestCheck_ContentType はレスポンスのステータスとContent-Typeの検証をテストする。
func TestCheck_ContentType(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		ct      string
		wantErr bool
	}{
		{name: "画像", status: http.StatusOK, ct: "image/png"},
		{name: "Content-Typeなし", status: http.StatusOK, ct: ""},
		{name: "HTML", status: http.StatusOK, ct: "text/html", wantErr: true},
		{name: "404", status: http.StatusNotFound, ct: "image/png", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
				if r.Method != http.MethodHead {
					t.Errorf("method = %s, want HEAD", r.Method)
				}
				rec := httptest.NewRecorder()
				if tt.ct != "" {
					rec.Header().Set("Content-Type", tt.ct)
				}
				rec.WriteHeader(tt.status)
				return rec.Result(), nil
			})}
			guard := NewImageGuard(time.Second, true, WithImageHTTPClient(client))

			err := guard.Check(context.Background(), "https://cdn.example.com/a.png")
			if (err != nil) != tt.wantErr {
				t.Errorf("Check error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestCheck_SafeClientBlocksLoopback はデフォルトのsafeurlクライアントがループバックを拒否することをテストする。
// 静的検証を通過するホスト名でも、DNS解決後のIPで拒否される。
func TestCheck_SafeClientBlocksLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	guard := NewImageGuard(2*time.Second, true)
	if err := guard.Check(context.Background(), ts.URL+"/a.png"); err == nil {
		t.Error("ループバックへのリクエストはブロックされるべき")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
