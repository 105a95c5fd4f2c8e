// Package bridge feeds telemetry published on an MQTT topic through
// the same ingest pipeline as the HTTP endpoint. Devices that already
// speak MQTT can report without the HTTP round trip; timestamp
// assignment, persistence and broadcast behave identically.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"

	"github.com/eclipse/paho.golang/paho"

	"race-telemetry/internal/ingest"
	"race-telemetry/internal/models"
)

// Bridge subscribes to one topic on one broker and forwards every
// JSON payload into the ingest service. No retry: a dropped broker
// connection ends the bridge and surfaces the error to the caller.
type Bridge struct {
	host     string
	port     int
	topic    string
	clientID string
	ingest   *ingest.Service
}

// New builds a bridge over the given ingest service.
func New(host string, port int, topic, clientID string, ing *ingest.Service) *Bridge {
	return &Bridge{
		host:     host,
		port:     port,
		topic:    topic,
		clientID: clientID,
		ingest:   ing,
	}
}

// Run connects, subscribes, and forwards messages until ctx is
// cancelled or the connection fails.
func (b *Bridge) Run(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", b.host, b.port))
	if err != nil {
		return fmt.Errorf("failed to reach MQTT broker: %w", err)
	}

	clientErr := make(chan error, 1)
	client := paho.NewClient(paho.ClientConfig{
		Conn:     conn,
		ClientID: b.clientID,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				b.handleMessage(pr.Packet.Payload)
				return true, nil
			},
		},
		OnClientError: func(err error) {
			select {
			case clientErr <- err:
			default:
			}
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			select {
			case clientErr <- fmt.Errorf("server disconnect, reason code %d", d.ReasonCode):
			default:
			}
		},
	})

	if _, err := client.Connect(ctx, &paho.Connect{
		ClientID:   b.clientID,
		CleanStart: true,
		KeepAlive:  30,
	}); err != nil {
		return fmt.Errorf("MQTT connect failed: %w", err)
	}

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: b.topic, QoS: 0}},
	}); err != nil {
		return fmt.Errorf("MQTT subscribe failed: %w", err)
	}

	log.Printf("MQTT bridge subscribed to %s on %s:%d", b.topic, b.host, b.port)

	select {
	case <-ctx.Done():
		client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return ctx.Err()
	case err := <-clientErr:
		return fmt.Errorf("MQTT connection lost: %w", err)
	}
}

// handleMessage decodes one payload and runs it through ingest.
// Malformed JSON is dropped with a log line; field-level defaulting
// happens downstream exactly as for HTTP ingest.
func (b *Bridge) handleMessage(payload []byte) {
	var p models.Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("MQTT bridge: dropping malformed payload: %v", err)
		return
	}
	if _, err := b.ingest.Ingest(p); err != nil {
		log.Printf("MQTT bridge: store write failed: %v", err)
	}
}
