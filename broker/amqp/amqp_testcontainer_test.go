//go:build testcontainers

// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package amqp

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/z5labs/printq/broker"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRabbitMQContainer starts a RabbitMQ container and returns its host:port.
func setupRabbitMQContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "docker.io/library/rabbitmq:3-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(90 * time.Second),
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start RabbitMQ container")

	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate RabbitMQ container: %v", err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)

	port, err := c.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func publish(t *testing.T, addr, queue string, pub amqp.Publishing) {
	t.Helper()

	conn, err := amqp.Dial("amqp://guest:guest@" + addr + "/")
	require.NoError(t, err)
	defer conn.Close()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	_, err = ch.QueueDeclare(queue, true, false, false, false, nil)
	require.NoError(t, err)

	err = ch.PublishWithContext(context.Background(), "", queue, false, false, pub)
	require.NoError(t, err)
}

func TestDriver_Integration(t *testing.T) {
	addr := setupRabbitMQContainer(t)

	d, err := NewDriver(addr, "guest", "guest")
	require.NoError(t, err)

	c := broker.NewConnector(d, "print.jobs")
	require.True(t, c.Connect(context.Background()))
	t.Cleanup(func() {
		c.Close()
	})

	publish(t, addr, "print.jobs", amqp.Publishing{
		ContentType: "application/pdf",
		Body:        []byte("%PDF-1.4 test"),
		Headers: amqp.Table{
			"FileName": "invoice.pdf",
			"JobName":  "INV-1",
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	msg, err := c.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, broker.KindBytes, msg.Kind)
	require.Equal(t, []byte("%PDF-1.4 test"), msg.Body)
	require.Equal(t, "invoice.pdf", msg.Property("FileName"))
	require.Equal(t, "INV-1", msg.Property("JobName"))

	require.True(t, c.Close())
	require.False(t, c.Connected())
}
