package cloud

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/athena/athenaiface"
	"github.com/aws/aws-sdk-go/service/firehose"
	"github.com/aws/aws-sdk-go/service/firehose/firehoseiface"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"

	"github.com/aws-samples/amazon-chime-voiceconnector-cdr-processing/internal/config"
)

// Clients bundles the service clients the pipeline talks to.
type Clients struct {
	Glue     glueiface.GlueAPI
	Athena   athenaiface.AthenaAPI
	S3       s3iface.S3API
	SNS      snsiface.SNSAPI
	Firehose firehoseiface.FirehoseAPI
}

// NewSession creates a shared session for the configured region.
func NewSession(cfg config.AWSConfig) (*session.Session, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws: new session: %w", err)
	}
	return sess, nil
}

// NewClients builds every service client from one session.
func NewClients(sess *session.Session) *Clients {
	return &Clients{
		Glue:     glue.New(sess),
		Athena:   athena.New(sess),
		S3:       s3.New(sess),
		SNS:      sns.New(sess),
		Firehose: firehose.New(sess),
	}
}

// Presigner issues time-limited GET links for stored objects.
type Presigner interface {
	PresignGetObject(bucket, key string, ttl time.Duration) (string, error)
}

// S3Presigner signs GetObject requests.
type S3Presigner struct {
	client s3iface.S3API
}

// NewS3Presigner wraps an S3 client.
func NewS3Presigner(client s3iface.S3API) *S3Presigner {
	return &S3Presigner{client: client}
}

// PresignGetObject returns a signed URL valid for ttl.
func (p *S3Presigner) PresignGetObject(bucket, key string, ttl time.Duration) (string, error) {
	req, _ := p.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("s3: presign %s/%s: %w", bucket, key, err)
	}
	return url, nil
}
