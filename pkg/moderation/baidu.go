package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

const (
	defaultBaiduBaseURL = "https://aip.baidubce.com"
	baiduTokenPath      = "/oauth/2.0/token"
	baiduTextPath       = "/rest/2.0/solution/v1/text_censor/v2/user_defined"
	baiduImagePath      = "/rest/2.0/solution/v1/img_censor/v2/user_defined"

	// baiduCompliant is the conclusionType the censor API returns for
	// content that passed.
	baiduCompliant = 1
)

type BaiduConfig struct {
	AppID     string
	APIKey    string
	SecretKey string
	BaseURL   string // defaults to https://aip.baidubce.com
	Timeout   time.Duration
}

// Baidu checks content with the Baidu AIP content censor. Access tokens are
// fetched with the OAuth2 client credentials grant and cached until expiry.
type Baidu struct {
	http   *resty.Client
	tokens oauth2.TokenSource
}

type baiduCensorResponse struct {
	LogID          int64  `json:"log_id"`
	Conclusion     string `json:"conclusion"`
	ConclusionType *int   `json:"conclusionType"`
	ErrorCode      int    `json:"error_code"`
	ErrorMsg       string `json:"error_msg"`
}

func NewBaidu(cfg BaiduConfig) (*Baidu, error) {
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: baidu api_key and secret_key are required", ErrMissingCredentials)
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaiduBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	hc := resty.New().SetBaseURL(base).SetTimeout(timeout)

	cc := &clientcredentials.Config{
		ClientID:     cfg.APIKey,
		ClientSecret: cfg.SecretKey,
		TokenURL:     base + baiduTokenPath,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, hc.GetClient())

	return &Baidu{
		http:   hc,
		tokens: cc.TokenSource(tokenCtx),
	}, nil
}

// CheckText implements bottle.Moderator.
func (b *Baidu) CheckText(ctx context.Context, text string) (bool, error) {
	return b.censor(ctx, baiduTextPath, map[string]string{"text": text})
}

// CheckImage implements bottle.Moderator.
func (b *Baidu) CheckImage(ctx context.Context, img bottle.Image) (bool, error) {
	form := map[string]string{}
	switch img.Type {
	case bottle.ImageBase64:
		_, payload := bottle.SplitDataURI(img.Data)
		form["image"] = payload
	default:
		form["imgUrl"] = img.Data
	}
	return b.censor(ctx, baiduImagePath, form)
}

func (b *Baidu) censor(ctx context.Context, path string, form map[string]string) (bool, error) {
	tok, err := b.tokens.Token()
	if err != nil {
		return false, fmt.Errorf("baidu access token: %w", err)
	}

	resp, err := b.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", tok.AccessToken).
		SetFormData(form).
		Post(path)
	if err != nil {
		return false, fmt.Errorf("baidu censor request: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("baidu censor: HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	var out baiduCensorResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return false, fmt.Errorf("decoding baidu censor response: %w", err)
	}

	// No conclusion means the check did not pass.
	if out.ConclusionType == nil {
		logger.WarnCF("moderation", "Baidu censor returned no conclusion", map[string]any{
			"error_code": out.ErrorCode,
			"error_msg":  out.ErrorMsg,
		})
		return false, nil
	}
	return *out.ConclusionType == baiduCompliant, nil
}

var _ bottle.Moderator = (*Baidu)(nil)
