package taskrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"viral-clipper/internal/dto"
	"viral-clipper/log"
)

// Notifier posts finished job status to a callback url.
type Notifier struct {
	client *resty.Client
}

func NewNotifier(timeout time.Duration, retries int) *Notifier {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Content-Type", "application/json")
	return &Notifier{client: client}
}

func (n *Notifier) Notify(ctx context.Context, url string, status dto.JobStatusData) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(status).
		Post(url)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("callback returned %d", resp.StatusCode())
	}
	log.GetLogger().Info("[TaskRunner] callback delivered",
		zap.String("job_id", status.JobId),
		zap.String("url", url),
		zap.Int("status", resp.StatusCode()))
	return nil
}
