package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedDestination はプライベートネットワーク等への到達を拒否したことを示す。
var ErrBlockedDestination = errors.New("blocked destination")

// allowedSchemes は商品画像URLで許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はパッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// ImageGuard は管理者が登録する商品画像URLを検証する。
// ValidateURL はDNS解決を伴わない静的検証、Check は実際にHEADリクエストを送信する。
type ImageGuard struct {
	client       *http.Client
	checkEnabled bool
}

// ImageGuardOption はImageGuardの設定を変更する。
type ImageGuardOption func(*ImageGuard)

// WithImageHTTPClient はCheckで使用するHTTPクライアントを差し替える。
func WithImageHTTPClient(c *http.Client) ImageGuardOption {
	return func(g *ImageGuard) { g.client = c }
}

// NewImageGuard はImageGuardを生成する。
// デフォルトのクライアントはsafeurlでラップされ、DNS解決後のIPアドレスも検証される。
func NewImageGuard(timeout time.Duration, checkEnabled bool, opts ...ImageGuardOption) *ImageGuard {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	g := &ImageGuard{
		client:       safeurl.Client(cfg).Client,
		checkEnabled: checkEnabled,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CheckEnabled はCheckが有効かを返す。
func (g *ImageGuard) CheckEnabled() bool {
	return g.checkEnabled
}

// ValidateURL はURLの安全性を静的に検証する。
// 危険な宛先の場合は ErrBlockedDestination をラップしたエラーを返す。
func (g *ImageGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedDestination, ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("%w: %s", ErrBlockedDestination, host)
	}
	return nil
}

// Check は画像URLにHEADリクエストを送り、画像が取得可能かを検証する。
// 無効化されている場合は静的検証のみ行う。
func (g *ImageGuard) Check(ctx context.Context, rawURL string) error {
	if err := g.ValidateURL(rawURL); err != nil {
		return err
	}
	if !g.checkEnabled {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("image URL unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("image URL returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "image/") {
		return fmt.Errorf("image URL returned non-image content type: %s", ct)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
