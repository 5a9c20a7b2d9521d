package s3origin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"assetvault/pkg/origin"
	"assetvault/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Adapter 实现了 origin.Client 接口 (S3 兼容对象存储做源站)
type Adapter struct {
	client *s3.Client
	bucket string
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// 对象元数据键 (S3 user metadata，key 会被 SDK 自动加 x-amz-meta- 前缀)
const (
	metaFilename = "av-filename"
	metaHash     = "av-hash"
)

// NewAdapter 初始化 S3 客户端 (AWS SDK v2)
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	// 1. 加载基础配置 (Region + Credentials)
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. S3 特定配置：BaseEndpoint 覆盖 + Path Style
	// MinIO 这类自建存储必须用 Path Style (http://host:9000/bucket/key)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	// 3. 确保 Bucket 存在 (Head 失败就尝试创建，生产环境建议手动管理)
	_, err = client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &cfg.Bucket})
	if err != nil {
		if _, cErr := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &cfg.Bucket}); cErr != nil {
			fmt.Printf("Warning: failed to ensure bucket exists: %v\n", cErr)
		}
	}

	return &Adapter{client: client, bucket: cfg.Bucket}, nil
}

// transformKey 把 id 转换为 S3 Key (Sharding)
// Logic: "2cf24dba-..." -> "2c/f24dba-..."
func (a *Adapter) transformKey(id types.ID) string {
	s := id.String()
	if len(s) < 2 {
		return s
	}
	return s[:2] + "/" + s[2:]
}

// UploadPending 批量上传待同步资产
// 单个失败不终止整批：成功/失败按 id 分组返回，调用方只翻转
// 成功那一组的 uploaded 标记。
func (a *Adapter) UploadPending(ctx context.Context, assets []origin.PendingAsset) (uploaded, failed []types.ID, err error) {
	for _, asset := range assets {
		_, putErr := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(a.transformKey(asset.ID)),
			Body:        bytes.NewReader(asset.Bytes),
			ContentType: aws.String(asset.MIME),
			Metadata: map[string]string{
				metaFilename: asset.Filename,
				metaHash:     asset.Hash.String(),
			},
		})
		if putErr != nil {
			failed = append(failed, asset.ID)
			continue
		}
		uploaded = append(uploaded, asset.ID)
	}
	return uploaded, failed, nil
}

// DownloadByID 按 id 下载
func (a *Adapter) DownloadByID(ctx context.Context, id types.ID) (*origin.Download, error) {
	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.transformKey(id)),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 映射为我们自己的 ErrNotFound
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, origin.ErrNotFound
		}
		// 兼容性：某些 S3 实现返回 generic 404 error string
		if strings.Contains(err.Error(), "404") || strings.Contains(err.Error(), "NotFound") {
			return nil, origin.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 body read failed: %w", err)
	}

	dl := &origin.Download{
		Bytes: data,
		Size:  int64(len(data)),
	}
	if resp.ContentType != nil {
		dl.MIME = *resp.ContentType
	}
	dl.Filename = resp.Metadata[metaFilename]
	dl.Hash = types.Hash(resp.Metadata[metaHash])
	return dl, nil
}

// BulkDelete 批量删除 (尽力而为，部分失败只告警)
func (a *Adapter) BulkDelete(ctx context.Context, ids []types.ID) error {
	if len(ids) == 0 {
		return nil
	}

	objects := make([]s3types.ObjectIdentifier, 0, len(ids))
	for _, id := range ids {
		objects = append(objects, s3types.ObjectIdentifier{
			Key: aws.String(a.transformKey(id)),
		})
	}

	resp, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(a.bucket),
		Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("s3 bulk delete failed: %w", err)
	}
	if len(resp.Errors) > 0 {
		// 部分失败：远端是最终一致的尽力而为，不向上冒泡为硬错误
		fmt.Printf("Warning: %d objects failed to delete remotely\n", len(resp.Errors))
	}
	return nil
}

// ListInventory 列出源站清单 (分页拉全量)
func (a *Adapter) ListInventory(ctx context.Context) ([]origin.InventoryEntry, error) {
	var out []origin.InventoryEntry

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list failed: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			// 还原 id: "2c/f24dba-..." -> "2cf24dba-..."
			id := types.ID(strings.Replace(*obj.Key, "/", "", 1))
			entry := origin.InventoryEntry{ID: id}
			if obj.Size != nil {
				entry.Size = *obj.Size
			}
			out = append(out, entry)
		}
	}
	return out, nil
}
