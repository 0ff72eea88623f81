/*
Copyright 2025 The Tesslate Studio Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package archive moves project directories in and out of S3-compatible
// object storage as single zip archives. All credentials stay inside the
// orchestrator process; workloads never see them.
package archive

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"

	"github.com/TesslateAI/studio-core/pkg/studio/config"
	"github.com/TesslateAI/studio-core/pkg/studio/constants"
	studioerrors "github.com/TesslateAI/studio-core/pkg/studio/errors"
	"github.com/TesslateAI/studio-core/pkg/studio/output/log"
	"github.com/TesslateAI/studio-core/pkg/studio/util"
)

const uploadRetries = 3

// Archiver stores and retrieves project archives.
type Archiver struct {
	client    *s3.Client
	presigner *s3.PresignClient
	uploader  *manager.Uploader
	bucket    string
	prefix    string
}

// New builds an Archiver against the configured S3 endpoint.
func New(ctx context.Context, cfg config.S3Config, timeouts config.Timeouts) (*Archiver, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: timeouts.S3Connect}).DialContext,
			ResponseHeaderTimeout: timeouts.S3Read,
		},
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Archiver{
		client:    client,
		presigner: s3.NewPresignClient(client),
		uploader:  manager.NewUploader(client),
		bucket:    cfg.Bucket,
		prefix:    cfg.ProjectsPrefix,
	}, nil
}

// Key is the object key of a project's active archive.
func (a *Archiver) Key(userID, projectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", a.prefix, userID, projectID, constants.ArchiveObjectName)
}

// DeletedKey is the object key of a soft-deleted project's archive.
func (a *Archiver) DeletedKey(userID, projectID string) string {
	return fmt.Sprintf("%s/%s/%s/%s", constants.DeletedArchivePrefix, userID, projectID, constants.ArchiveObjectName)
}

// Exists reports whether a project archive is present.
func (a *Archiver) Exists(ctx context.Context, userID, projectID string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(userID, projectID)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, studioerrors.Wrap(studioerrors.Transient, err, "checking archive for project %s", projectID)
	}
	return true, nil
}

// Size returns the archive size in bytes.
func (a *Archiver) Size(ctx context.Context, userID, projectID string) (int64, error) {
	head, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(userID, projectID)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, studioerrors.New(studioerrors.NotFound, "no archive for project %s", projectID)
		}
		return 0, err
	}
	return aws.ToInt64(head.ContentLength), nil
}

// UploadDirectory zips localPath and uploads it as the project's archive.
// The zip excludes .git, __pycache__, *.pyc, .DS_Store and *.log always,
// and node_modules when excludeNodeModules is set.
func (a *Archiver) UploadDirectory(ctx context.Context, userID, projectID, localPath string, excludeNodeModules bool) error {
	tmp, err := os.CreateTemp("", "studio-archive-*.zip")
	if err != nil {
		return fmt.Errorf("creating temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	excludes := append([]string{}, constants.ArchiveExcludes...)
	if excludeNodeModules {
		excludes = append(excludes, "node_modules/*")
	}
	if err := util.ZipDirectory(tmp, localPath, excludes); err != nil {
		return fmt.Errorf("zipping %s: %w", localPath, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}

	return a.UploadStream(ctx, userID, projectID, tmp)
}

// UploadStream uploads an already-zipped archive stream with bounded retry.
func (a *Archiver) UploadStream(ctx context.Context, userID, projectID string, body io.ReadSeeker) error {
	key := a.Key(userID, projectID)

	operation := func() error {
		if _, err := body.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(err)
		}
		_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        body,
			ContentType: aws.String("application/zip"),
			Metadata: map[string]string{
				"user_id":    userID,
				"project_id": projectID,
			},
		})
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uploadRetries-1)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return studioerrors.Wrap(studioerrors.Transient, err, "uploading archive for project %s", projectID)
	}

	log.Entry(ctx).Infof("uploaded archive %s/%s", a.bucket, key)
	return nil
}

// Download writes the project archive to destPath.
func (a *Archiver) Download(ctx context.Context, userID, projectID, destPath string) error {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(userID, projectID)),
	})
	if err != nil {
		if isNotFound(err) {
			return studioerrors.New(studioerrors.NotFound, "no archive for project %s", projectID)
		}
		return studioerrors.Wrap(studioerrors.Transient, err, "downloading archive for project %s", projectID)
	}
	defer out.Body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("writing archive to %s: %w", destPath, err)
	}
	return nil
}

// Delete removes the project's active archive. Idempotent.
func (a *Archiver) Delete(ctx context.Context, userID, projectID string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(userID, projectID)),
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// CopyToDeleted moves the archive under the deleted/ prefix so removed
// projects keep a backup with its own retention policy.
func (a *Archiver) CopyToDeleted(ctx context.Context, userID, projectID string) error {
	src := fmt.Sprintf("%s/%s", a.bucket, a.Key(userID, projectID))
	_, err := a.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(a.bucket),
		CopySource: aws.String(src),
		Key:        aws.String(a.DeletedKey(userID, projectID)),
	})
	if err != nil {
		if isNotFound(err) {
			return studioerrors.New(studioerrors.NotFound, "no archive for project %s", projectID)
		}
		return err
	}
	return a.Delete(ctx, userID, projectID)
}

// PresignedURL returns a time-limited download URL for the archive.
func (a *Archiver) PresignedURL(ctx context.Context, userID, projectID string, ttl time.Duration) (string, error) {
	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(a.Key(userID, projectID)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning archive URL: %w", err)
	}
	return req.URL, nil
}

func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if stderrors.As(err, &notFound) || stderrors.As(err, &noKey) {
		return true
	}
	// HeadObject surfaces 404 without a typed error on some gateways.
	return strings.Contains(err.Error(), "StatusCode: 404") || strings.Contains(err.Error(), "NotFound")
}

func retryable(err error) bool {
	// Treat everything except obvious permanent failures as retryable;
	// missing buckets never heal on retry.
	msg := err.Error()
	return !strings.Contains(msg, "NoSuchBucket") && !strings.Contains(msg, "AccessDenied")
}
