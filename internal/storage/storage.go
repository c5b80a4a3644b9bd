// Package storage keeps document content in an S3-compatible bucket for the
// relational backend.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type Config struct {
	Endpoint        string `mapstructure:"Endpoint"`
	Region          string `mapstructure:"Region"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	Bucket          string `mapstructure:"Bucket"`
	UsePathStyle    bool   `mapstructure:"UsePathStyle"`
}

// Object is a stored blob being read.
type Object interface {
	io.ReadCloser
	ContentLength() int64
	ContentType() string
}

type object struct {
	io.ReadCloser
	contentLength int64
	contentType   string
}

func (o *object) ContentLength() int64 {
	return o.contentLength
}

func (o *object) ContentType() string {
	return o.contentType
}

// Storage is the content store the relational backend writes to.
type Storage interface {
	UploadBytes(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string) (Object, error)
	DeleteObject(ctx context.Context, key string) error
}

// ContentKey is the object key of one document version's content. It
// matches the content reference the document carries.
func ContentKey(reference string) string {
	return fmt.Sprintf("documents/%s", reference)
}
