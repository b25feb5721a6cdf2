package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sshcollectorpro/switchinfo/internal/config"
	"github.com/sshcollectorpro/switchinfo/pkg/logger"
)

// Uploader 运行结束后上传结果文件
type Uploader interface {
	Upload(ctx context.Context, meta UploadMeta, localPath string) (StoredObject, error)
}

// UploadMeta 对象路径元数据
type UploadMeta struct {
	RunID     string
	StartTime time.Time
}

// StoredObject 已上传对象信息
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// MinioStorageWriter 将结果 CSV 写入 MinIO
type MinioStorageWriter struct {
	cfg           config.MinioConfig
	client        *minio.Client
	endpoint      string
	bucketEnsured bool
}

// NewMinioStorageWriter 创建 MinIO 写入器，bucket 在首次上传时校验
func NewMinioStorageWriter(cfg config.MinioConfig) (*MinioStorageWriter, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("minio configuration incomplete: host/port missing")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("minio bucket not configured")
	}
	endpoint := net.JoinHostPort(host, fmt.Sprintf("%d", cfg.Port))

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		IdleConnTimeout:       90 * time.Second,
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client initialization failed: %w", err)
	}
	return &MinioStorageWriter{cfg: cfg, client: client, endpoint: endpoint}, nil
}

// objectName 对象路径：{prefix}/{YYYYMMDD}/{HHMMSS}_{run_id}/{文件名}
func objectName(prefix string, meta UploadMeta, localPath string) string {
	parts := []string{}
	if p := strings.Trim(strings.TrimSpace(prefix), "/"); p != "" {
		parts = append(parts, p)
	}
	ts := meta.StartTime
	if ts.IsZero() {
		ts = time.Now()
	}
	parts = append(parts, ts.Format("20060102"))
	dir := ts.Format("150405")
	if id := slug(meta.RunID); id != "unknown" {
		dir += "_" + id
	}
	parts = append(parts, dir, slug(filepath.Base(localPath)))
	return path.Join(parts...)
}

// Upload 上传本地文件，失败按退避重试
func (w *MinioStorageWriter) Upload(ctx context.Context, meta UploadMeta, localPath string) (StoredObject, error) {
	if w == nil || w.client == nil {
		return StoredObject{}, fmt.Errorf("minio client not initialized")
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return StoredObject{}, fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	bucket := strings.TrimSpace(w.cfg.Bucket)
	name := objectName(w.cfg.Prefix, meta, localPath)
	const ct = "text/csv; charset=utf-8"

	// 写入前快速连通性探测（失败则尽早返回明确错误）
	if err := w.fastConnectivityCheck(ctx); err != nil {
		return StoredObject{}, fmt.Errorf("minio connectivity failed to %s: %w", w.endpoint, err)
	}
	if !w.bucketEnsured {
		if err := w.ensureBucket(ctx, bucket, 2); err != nil {
			return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		w.bucketEnsured = true
	}

	var lastErr error
	for _, wait := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		attemptCtx, cancel := attemptContext(ctx, wait*5)
		_, err := w.client.PutObject(attemptCtx, bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{ContentType: ct})
		cancel()
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		logger.WithField("object", name).Warnf("MinIO put failed, retrying: %v", err)
		select {
		case <-ctx.Done():
			return StoredObject{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	if lastErr != nil {
		return StoredObject{}, fmt.Errorf("minio put object failed after retries: %w", lastErr)
	}

	sum := sha256.Sum256(data)
	return StoredObject{
		URI:         "minio://" + path.Join(bucket, name),
		Size:        int64(len(data)),
		Checksum:    "sha256:" + hex.EncodeToString(sum[:]),
		ContentType: ct,
	}, nil
}

// fastConnectivityCheck 使用 TCP 直连做快速连通性校验
func (w *MinioStorageWriter) fastConnectivityCheck(parent context.Context) error {
	d := &net.Dialer{Timeout: 3 * time.Second}
	conn, err := d.DialContext(parent, "tcp", w.endpoint)
	if err != nil {
		return err
	}
	return conn.Close()
}

// ensureBucket 校验并创建 bucket，支持有限重试
func (w *MinioStorageWriter) ensureBucket(parent context.Context, bucket string, retries int) error {
	var lastErr error
	for i := 0; i <= retries; i++ {
		ctx, cancel := attemptContext(parent, 10*time.Second)
		exists, err := w.client.BucketExists(ctx, bucket)
		if err == nil && !exists {
			err = w.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		}
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	return lastErr
}

// attemptContext 构造限时上下文，尊重父上下文的剩余截止时间
func attemptContext(parent context.Context, prefer time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := parent.Deadline(); ok {
		remain := time.Until(deadline)
		if remain > time.Second && prefer < remain {
			return context.WithTimeout(parent, prefer)
		}
		if remain > time.Second {
			return context.WithTimeout(parent, remain-time.Second)
		}
		return context.WithTimeout(parent, time.Second)
	}
	return context.WithTimeout(parent, prefer)
}

var slugRe = regexp.MustCompile(`[^a-z0-9._-]+`)

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(s)
	s = slugRe.ReplaceAllString(s, "")
	if s == "" {
		s = "unknown"
	}
	return s
}
