// internal/workers/communication/notify-batch-summary/service.go
package notifybatchsummary

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"hotspot-selection/internal/common/errors"
	"hotspot-selection/internal/common/logger"
	"hotspot-selection/internal/common/metrics"
	"hotspot-selection/internal/models"
)

// Publisher is satisfied by *aws.SNSClient.
type Publisher interface {
	PublishJSON(ctx context.Context, topicARN, subject, body string, attrs map[string]string) (string, error)
}

// Mailer is satisfied by *aws.SESClient.
type Mailer interface {
	SendDigest(ctx context.Context, from string, to []string, subject, text, html string) (string, error)
}

type ServiceDependencies struct {
	Publisher Publisher
	Mailer    Mailer
	Logger    logger.Logger
}

type Service struct {
	config    *Config
	publisher Publisher
	mailer    Mailer
	logger    logger.Logger
}

func NewService(deps ServiceDependencies, config *Config) (*Service, error) {
	if config.SNSEnabled && deps.Publisher == nil {
		return nil, fmt.Errorf("sns is enabled but no publisher was provided")
	}
	if config.EmailEnabled && deps.Mailer == nil {
		return nil, fmt.Errorf("email is enabled but no mailer was provided")
	}
	return &Service{
		config:    config,
		publisher: deps.Publisher,
		mailer:    deps.Mailer,
		logger:    deps.Logger,
	}, nil
}

// Execute fans the summary out to every enabled channel. Both channels are
// attempted; the first failure is returned after the other has run.
func (s *Service) Execute(ctx context.Context, input *Input) (*Output, error) {
	summary := input.BatchSummary
	d, err := renderDigest(summary, s.config.MaxItems, s.config.Location)
	if err != nil {
		return nil, &errors.StandardError{
			Code:    errors.ErrCodeInternal,
			Message: "Failed to render batch digest",
			Details: err.Error(),
		}
	}

	out := &Output{Channels: []string{}}
	var firstErr error

	if s.config.SNSEnabled {
		id, err := s.publish(ctx, summary, d.Subject)
		if err != nil {
			firstErr = errors.NewNotificationSendFailedError(ChannelSNS, err)
		} else {
			out.SNSMessageID = id
			out.Channels = append(out.Channels, ChannelSNS)
		}
	}

	if s.config.EmailEnabled {
		to := s.config.To
		if len(input.Recipients) > 0 {
			to = input.Recipients
		}
		id, err := s.mailer.SendDigest(ctx, s.config.FromEmail, to, d.Subject, d.Text, d.HTML)
		s.record(ChannelEmail, err)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.NewNotificationSendFailedError(ChannelEmail, err)
			}
		} else {
			out.EmailMessageID = id
			out.Channels = append(out.Channels, ChannelEmail)
		}
	}

	if firstErr != nil {
		s.logger.Warn("batch notification incomplete", map[string]interface{}{
			"runId":     summary.RunID,
			"delivered": out.Channels,
			"error":     firstErr.Error(),
		})
		return nil, firstErr
	}

	out.Notified = len(out.Channels) > 0
	s.logger.Info("batch notification sent", map[string]interface{}{
		"runId":    summary.RunID,
		"state":    summary.State,
		"channels": out.Channels,
	})
	return out, nil
}

func (s *Service) publish(ctx context.Context, summary *models.BatchSummary, subject string) (string, error) {
	body, err := json.Marshal(summary)
	if err != nil {
		return "", err
	}
	attrs := map[string]string{
		"runId":       summary.RunID,
		"state":       string(summary.State),
		"recommended": strconv.Itoa(len(summary.Recommended)),
	}
	id, err := s.publisher.PublishJSON(ctx, s.config.TopicARN, subject, string(body), attrs)
	s.record(ChannelSNS, err)
	return id, err
}

func (s *Service) record(channel string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	metrics.NotificationsSent.WithLabelValues(channel, status).Inc()
}
