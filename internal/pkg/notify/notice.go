package notify

import (
	"strconv"
	"time"

	"paycenter/pkg/sign"
)

// TimeLayout 通知中时间字段的格式
const TimeLayout = "2006-01-02 15:04:05"

// ClientNotice 订单终态通知，推送给商户客户端
type ClientNotice struct {
	NoticeNo  string `json:"noticeNo"`
	OrderID   int64  `json:"orderId,string"`
	OrderNo   string `json:"orderNo"`
	Channel   string `json:"channel"`
	Title     string `json:"title"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	PayTime   string `json:"payTime,omitempty"`
	CloseTime string `json:"closeTime,omitempty"`
	Timestamp int64  `json:"timestamp"`
	SignType  string `json:"signType"`
	Sign      string `json:"sign"`

	// 投递目标，不参与签名
	NotifyURL     string `json:"notifyUrl,omitempty"`
	ClientAccount string `json:"clientAccount,omitempty"`
}

// CanonicalParams 声明参与签名的字段
func (n *ClientNotice) CanonicalParams(p *sign.Params) {
	p.Str("noticeNo", n.NoticeNo).
		Str("orderId", strconv.FormatInt(n.OrderID, 10)).
		Str("orderNo", n.OrderNo).
		Str("channel", n.Channel).
		Str("title", n.Title).
		Str("amount", strconv.FormatInt(n.Amount, 10)).
		Str("status", n.Status).
		String("payTime", optional(n.PayTime)).
		String("closeTime", optional(n.CloseTime)).
		Str("timestamp", strconv.FormatInt(n.Timestamp, 10)).
		Str("signType", n.SignType).
		Str("sign", n.Sign)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FormatTime 格式化可空时间
func FormatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(TimeLayout)
}

// Signer 通知签名器
type Signer struct {
	SignType string
	Secret   string
}

// Sign 填充签名类型、时间戳与签名
func (s Signer) Sign(n *ClientNotice) {
	n.SignType = s.SignType
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().Unix()
	}
	n.Sign = sign.Sign(s.SignType, n, s.Secret)
}

// Verify 商户侧验签
func (s Signer) Verify(n *ClientNotice) bool {
	return sign.Verify(n.SignType, n, s.Secret, n.Sign)
}
