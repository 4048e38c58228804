package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"commetrics-server/pkg/correlation"
	"commetrics-server/pkg/metrics"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// ErrNotConnected is returned by Publish while the broker connection is down
var ErrNotConnected = errors.New("not connected to AMQP server")

const (
	maxReconnectAttempts = 10
	maxReconnectBackoff  = 30 * time.Second

	// Undelivered alerts are stale after a day
	alertExpiration = "86400000"
)

// AMQPConfig holds the alert publisher settings
type AMQPConfig struct {
	URL            string
	QueueName      string
	ConnectTimeout time.Duration
}

// AMQPPublisher publishes digest alerts to a durable queue
type AMQPPublisher struct {
	logger    *logrus.Logger
	config    AMQPConfig
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
	connMutex sync.RWMutex
	stopChan  chan struct{}
}

// NewAMQPPublisher creates a publisher. Call Connect before publishing.
func NewAMQPPublisher(logger *logrus.Logger, config AMQPConfig) *AMQPPublisher {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	return &AMQPPublisher{
		logger: logger,
		config: config,
	}
}

// Name identifies the publisher as an alert sink
func (p *AMQPPublisher) Name() string {
	return "amqp"
}

// Connect dials the broker and declares the alert queue
func (p *AMQPPublisher) Connect(ctx context.Context) error {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if p.connected {
		return nil
	}
	if p.config.URL == "" || p.config.QueueName == "" {
		return fmt.Errorf("AMQP URL or queue name not configured")
	}

	timeout := p.config.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return fmt.Errorf("connecting to AMQP server: %w", context.DeadlineExceeded)
	}

	conn, err := amqp.DialConfig(p.config.URL, amqp.Config{
		Dial: amqp.DefaultDial(timeout),
		Properties: amqp.Table{
			"connection_name": "commetrics-server",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		p.config.QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	p.conn = conn
	p.channel = channel
	p.connected = true
	p.stopChan = make(chan struct{})
	metrics.SetAMQPConnectionStatus(true)

	p.logger.WithField("queue", p.config.QueueName).Info("Connected to AMQP server")

	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))
	go p.monitorConnection(closeChan, p.stopChan)

	return nil
}

// Disconnect closes the broker connection and stops reconnecting
func (p *AMQPPublisher) Disconnect() {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if p.stopChan != nil {
		close(p.stopChan)
		p.stopChan = nil
	}
	if !p.connected {
		return
	}

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.channel = nil
	p.conn = nil
	p.connected = false
	metrics.SetAMQPConnectionStatus(false)

	p.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (p *AMQPPublisher) IsConnected() bool {
	p.connMutex.RLock()
	defer p.connMutex.RUnlock()
	return p.connected
}

// Publish sends one alert as a persistent JSON message
func (p *AMQPPublisher) Publish(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	p.connMutex.RLock()
	defer p.connMutex.RUnlock()

	if !p.connected || p.channel == nil {
		return ErrNotConnected
	}

	err = p.channel.Publish(
		"", // default exchange
		p.config.QueueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			MessageId:     alert.ID,
			CorrelationId: correlation.FromContext(ctx).String(),
			Type:          "commetrics.alert",
			Timestamp:     time.Now(),
			Expiration:    alertExpiration,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"manager":  alert.Manager,
		"severity": alert.Severity,
	}).Debug("Published alert to AMQP")
	return nil
}

// monitorConnection reconnects with exponential backoff after the broker
// drops the connection. A successful Connect starts a fresh monitor.
func (p *AMQPPublisher) monitorConnection(closeChan <-chan *amqp.Error, stop <-chan struct{}) {
	var closeErr *amqp.Error
	select {
	case <-stop:
		return
	case closeErr = <-closeChan:
	}
	if closeErr == nil {
		// graceful close
		return
	}

	p.connMutex.Lock()
	p.connected = false
	p.channel = nil
	p.conn = nil
	p.connMutex.Unlock()
	metrics.SetAMQPConnectionStatus(false)

	p.logger.WithError(closeErr).Warn("AMQP connection closed, attempting to reconnect")

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}

		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}

		p.logger.WithField("attempt", attempt).Info("Reconnecting to AMQP server")
		ctx, cancel := context.WithTimeout(context.Background(), p.config.ConnectTimeout)
		err := p.Connect(ctx)
		cancel()
		if err == nil {
			p.logger.Info("Successfully reconnected to AMQP server")
			return
		}
		p.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")
	}

	p.logger.WithField("attempts", maxReconnectAttempts).Error("Giving up on AMQP reconnection")
}
