package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"paycenter/internal/pkg/config"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
)

// ReportStore 对账报告归档
type ReportStore interface {
	PutReport(ctx context.Context, name string, data []byte) (string, error)
}

// Bucket OSS bucket 接口子集
type Bucket interface {
	PutObject(objectKey string, reader io.Reader, options ...oss.Option) error
}

type AliyunOSSUploader struct {
	bucket Bucket
	config config.OSSConfig
	prefix string
}

func NewAliyunOSSUploader(cfg config.OSSConfig, prefix string) (*AliyunOSSUploader, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, err
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, err
	}

	return NewAliyunOSSUploaderWithBucket(bucket, cfg, prefix), nil
}

func NewAliyunOSSUploaderWithBucket(bucket Bucket, cfg config.OSSConfig, prefix string) *AliyunOSSUploader {
	return &AliyunOSSUploader{bucket: bucket, config: cfg, prefix: prefix}
}

// PutReport 上传报告，对象名: prefix/YYYYMMDD/name-uuid.json
func (u *AliyunOSSUploader) PutReport(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(u.prefix, time.Now().Format("20060102"), fmt.Sprintf("%s-%s.json", name, uuid.New().String()))

	err := u.bucket.PutObject(key, bytes.NewReader(data),
		oss.ContentType("application/json"),
		oss.WithContext(ctx),
	)
	if err != nil {
		return "", err
	}

	// bucket 为私有读，返回对象地址供后台签名下载
	url := fmt.Sprintf("https://%s.%s/%s", u.config.BucketName, u.config.Endpoint, key)
	return url, nil
}

var _ ReportStore = (*AliyunOSSUploader)(nil)
