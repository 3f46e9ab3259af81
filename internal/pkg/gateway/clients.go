// Package gateway 构造支付渠道 SDK 客户端，修复与分账共用同一实例
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"paycenter/internal/pkg/config"

	"github.com/smartwalle/alipay/v3"
	"github.com/wechatpay-apiv3/wechatpay-go/core"
	"github.com/wechatpay-apiv3/wechatpay-go/core/option"
	"github.com/wechatpay-apiv3/wechatpay-go/utils"
)

var (
	ErrAlipayNotConfigured = errors.New("alipay config missing")
	ErrWechatNotConfigured = errors.New("wechat pay config missing")
)

var (
	alipayOnce   sync.Once
	alipayClient *alipay.Client
	alipayErr    error

	wechatOnce   sync.Once
	wechatClient *core.Client
	wechatErr    error
)

// Alipay 返回进程内共享的支付宝客户端
func Alipay(cfg config.AlipayConfig) (*alipay.Client, error) {
	if cfg.AppID == "" {
		return nil, ErrAlipayNotConfigured
	}
	alipayOnce.Do(func() {
		alipayClient, alipayErr = newAlipay(cfg)
	})
	return alipayClient, alipayErr
}

func newAlipay(cfg config.AlipayConfig) (*alipay.Client, error) {
	var opts []alipay.OptionFunc
	if cfg.Timeout > 0 {
		opts = append(opts, alipay.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	client, err := alipay.New(cfg.AppID, cfg.PrivateKey, cfg.IsProduction, opts...)
	if err != nil {
		return nil, err
	}

	// 加载支付宝公钥 (用于验证签名)
	if err = client.LoadAliPayPublicKey(cfg.PublicKey); err != nil {
		return nil, err
	}
	return client, nil
}

// Wechat 返回进程内共享的微信支付客户端，平台证书只注册一次
func Wechat(ctx context.Context, cfg config.WechatPayConfig) (*core.Client, error) {
	if cfg.MchID == "" {
		return nil, ErrWechatNotConfigured
	}
	wechatOnce.Do(func() {
		wechatClient, wechatErr = newWechat(ctx, cfg)
	})
	return wechatClient, wechatErr
}

func newWechat(ctx context.Context, cfg config.WechatPayConfig) (*core.Client, error) {
	// 1. 加载商户私钥
	mchPrivateKey, err := utils.LoadPrivateKey(cfg.MchPrivateKey)
	if err != nil {
		return nil, err
	}

	// 2. 自动下载平台证书，请求中的敏感字段自动加密
	opts := []core.ClientOption{
		option.WithWechatPayAutoAuthCipher(cfg.MchID, cfg.MchCertificateSerial, mchPrivateKey, cfg.APIv3Key),
	}
	return core.NewClient(ctx, opts...)
}

// Call 执行不接收 context 的 SDK 调用，ctx 结束时立即返回 ctx.Err()。
// fn 会在后台执行完，其结果被丢弃。
func Call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
