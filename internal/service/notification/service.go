package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	gomail "gopkg.in/gomail.v2"

	"github.com/jwalitptl/pharmacare-api/internal/config"
	"github.com/jwalitptl/pharmacare-api/internal/model"
	"github.com/jwalitptl/pharmacare-api/internal/repository"
	"github.com/jwalitptl/pharmacare-api/pkg/messaging"
)

// Broker channels for gateway-delivered messages.
const (
	channelSMS      = "notifications:sms"
	channelWhatsApp = "notifications:whatsapp"
)

// Service dispatches patient notifications. Sending is fire-and-forget: the
// scheduling operation that triggered the notification never fails because
// delivery failed.
type Service interface {
	Send(ctx context.Context, notification *model.Notification) error
}

type service struct {
	repo   repository.NotificationRepository
	broker messaging.Broker
	smtp   config.SMTPConfig
}

func NewService(repo repository.NotificationRepository, broker messaging.Broker, smtp config.SMTPConfig) Service {
	return &service{
		repo:   repo,
		broker: broker,
		smtp:   smtp,
	}
}

func (s *service) Send(ctx context.Context, notification *model.Notification) error {
	if notification.Recipient == "" {
		return fmt.Errorf("notification recipient is required")
	}

	notification.ID = uuid.New()
	notification.Status = model.NotificationStatusPending
	notification.CreatedAt = time.Now()
	notification.UpdatedAt = time.Now()

	if err := s.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	go s.dispatch(context.WithoutCancel(ctx), notification)

	return nil
}

func (s *service) dispatch(ctx context.Context, notification *model.Notification) {
	var err error
	switch notification.Channel {
	case model.ReminderChannelEmail:
		err = s.sendEmail(notification)
	case model.ReminderChannelSMS:
		err = s.publish(ctx, channelSMS, notification)
	case model.ReminderChannelWhatsApp:
		err = s.publish(ctx, channelWhatsApp, notification)
	default:
		err = fmt.Errorf("unknown notification channel: %s", notification.Channel)
	}

	now := time.Now()
	notification.UpdatedAt = now
	if err != nil {
		log.Error().Err(err).
			Str("notification_id", notification.ID.String()).
			Str("channel", string(notification.Channel)).
			Msg("notification dispatch failed")
		msg := err.Error()
		notification.Status = model.NotificationStatusFailed
		notification.LastError = &msg
	} else {
		notification.Status = model.NotificationStatusSent
		notification.SentAt = &now
	}

	if err := s.repo.Update(ctx, notification); err != nil {
		log.Error().Err(err).
			Str("notification_id", notification.ID.String()).
			Msg("failed to record notification status")
	}
}

func (s *service) sendEmail(notification *model.Notification) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.smtp.From)
	m.SetHeader("To", notification.Recipient)
	m.SetHeader("Subject", notification.Subject)
	m.SetBody("text/plain", notification.Content)

	d := gomail.NewDialer(s.smtp.Host, s.smtp.Port, s.smtp.Username, s.smtp.Password)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *service) publish(ctx context.Context, channel string, notification *model.Notification) error {
	return s.broker.Publish(ctx, channel, messaging.Message{
		Type: string(notification.Channel),
		Payload: map[string]interface{}{
			"notification_id": notification.ID.String(),
			"appointment_id":  notification.AppointmentID.String(),
			"recipient":       notification.Recipient,
			"content":         notification.Content,
		},
	})
}
