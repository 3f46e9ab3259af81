// Package sign builds the canonical string of a request object and signs it.
//
// Rules:
//  1. keys are sorted in byte order and joined as k=v with '&'
//  2. nil values are skipped
//  3. keys are unique case-insensitively; the first declared spelling is kept
//  4. nested objects and lists are serialised as JSON strings
//  5. the "sign" key never takes part in the digest
package sign

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

const (
	TypeMD5        = "MD5"
	TypeHmacSHA256 = "HMAC_SHA256"

	signKey = "sign"
)

// Canonical 由请求对象显式声明参与签名的字段
type Canonical interface {
	CanonicalParams(p *Params)
}

type entry struct {
	key   string
	value string
	// nested 值本身是 JSON 文本
	nested bool
}

// Params 大小写不敏感的参数表
type Params struct {
	entries map[string]entry
}

func NewParams() *Params {
	return &Params{entries: make(map[string]entry)}
}

// Of 把对象展开为参数表
func Of(obj Canonical) *Params {
	p := NewParams()
	if obj != nil {
		obj.CanonicalParams(p)
	}
	return p
}

func (p *Params) put(key, value string) {
	p.set(entry{key: key, value: value})
}

func (p *Params) set(e entry) {
	lower := strings.ToLower(e.key)
	if old, ok := p.entries[lower]; ok {
		e.key = old.key
	}
	p.entries[lower] = e
}

// String 写入字符串字段，nil 跳过
func (p *Params) String(key string, value *string) *Params {
	if value != nil {
		p.put(key, *value)
	}
	return p
}

// Str 写入非指针字符串，空串也参与签名
func (p *Params) Str(key, value string) *Params {
	p.put(key, value)
	return p
}

func (p *Params) Int(key string, value *int64) *Params {
	if value != nil {
		p.put(key, strconv.FormatInt(*value, 10))
	}
	return p
}

func (p *Params) Bool(key string, value *bool) *Params {
	if value != nil {
		p.put(key, strconv.FormatBool(*value))
	}
	return p
}

// Object 写入嵌套对象，序列化为 JSON 对象字符串
func (p *Params) Object(key string, value Canonical) *Params {
	if value == nil {
		return p
	}
	p.set(entry{key: key, value: Of(value).json(), nested: true})
	return p
}

// List 写入列表，每个元素单独展开后序列化为 JSON 数组字符串；空列表跳过
func List[T Canonical](p *Params, key string, items []T) *Params {
	if len(items) == 0 {
		return p
	}
	var b strings.Builder
	b.WriteByte('[')
	n := 0
	for _, item := range items {
		if any(item) == nil {
			continue
		}
		if n > 0 {
			b.WriteByte(',')
		}
		b.WriteString(Of(item).json())
		n++
	}
	b.WriteByte(']')
	p.set(entry{key: key, value: b.String(), nested: true})
	return p
}

// Get 大小写不敏感读取
func (p *Params) Get(key string) (string, bool) {
	e, ok := p.entries[strings.ToLower(key)]
	return e.value, ok
}

func (p *Params) Remove(key string) {
	delete(p.entries, strings.ToLower(key))
}

func (p *Params) Len() int {
	return len(p.entries)
}

// sorted 按字节序排序
func (p *Params) sorted() []entry {
	list := make([]entry, 0, len(p.entries))
	for _, e := range p.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].key < list[j].key })
	return list
}

// json 嵌套对象按大小写不敏感顺序输出
func (p *Params) json() string {
	list := p.sorted()
	sort.SliceStable(list, func(i, j int) bool {
		return strings.ToLower(list[i].key) < strings.ToLower(list[j].key)
	})

	var b strings.Builder
	b.WriteByte('{')
	for i, e := range list {
		if i > 0 {
			b.WriteByte(',')
		}
		writeJSONString(&b, e.key)
		b.WriteByte(':')
		if e.nested {
			b.WriteString(e.value)
		} else {
			writeJSONString(&b, e.value)
		}
	}
	b.WriteByte('}')
	return b.String()
}

func writeJSONString(b *strings.Builder, s string) {
	raw, _ := json.Marshal(s)
	b.Write(raw)
}

// LinkString 排序并拼接为 k=v&k=v，末尾不带 &
func (p *Params) LinkString() string {
	var b strings.Builder
	for i, e := range p.sorted() {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(e.key)
		b.WriteByte('=')
		b.WriteString(e.value)
	}
	return b.String()
}

// SignString 生成待签名字符串
func SignString(obj Canonical, secret string) string {
	p := Of(obj)
	p.Remove(signKey)
	return p.LinkString() + "&key=" + secret
}

func MD5(data string) string {
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

func HmacSHA256(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func MD5Sign(obj Canonical, secret string) string {
	return MD5(SignString(obj, secret))
}

func HmacSHA256Sign(obj Canonical, secret string) string {
	return HmacSHA256(SignString(obj, secret), secret)
}

func VerifyMD5(obj Canonical, secret, sign string) bool {
	return MD5Sign(obj, secret) == sign
}

func VerifyHmacSHA256(obj Canonical, secret, sign string) bool {
	return HmacSHA256Sign(obj, secret) == sign
}

// Sign 按签名类型签名，未知类型返回空串
func Sign(signType string, obj Canonical, secret string) string {
	switch signType {
	case TypeMD5:
		return MD5Sign(obj, secret)
	case TypeHmacSHA256:
		return HmacSHA256Sign(obj, secret)
	default:
		return ""
	}
}

// Verify 按签名类型验签
func Verify(signType string, obj Canonical, secret, sign string) bool {
	expected := Sign(signType, obj, secret)
	return expected != "" && expected == sign
}
