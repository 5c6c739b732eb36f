// Package publisher pushes every observation to an MQTT broker.
//
// Topic Structure:
//   <prefix>/<role> - one retained-free JSON message per completed poll
//   Example: sidelink/primary
//
// Message Format:
//   JSON with role, timestamp, status, frame/slot, the four channel counter
//   triples, quality and throughput (see Payload).
//
// Features:
//   - MQTT auto-reconnect with 1-minute max interval
//   - Non-blocking publish from the polling goroutine
//   - Observations are skipped, not queued, while the broker is unreachable
package publisher

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"sidelinkmon/monitor"
	"sidelinkmon/sidelink"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures the broker connection.
type Options struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Publisher is a monitor.Observer backed by a Paho MQTT client.
//
// Thread Safety:
//   - Observe may be called from several polling goroutines at once
//   - The Paho client serializes outbound packets internally
type Publisher struct {
	opts      Options
	client    mqtt.Client
	published atomic.Uint64
	skipped   atomic.Uint64
	order     monitor.OrderGuard
}

// Payload is the JSON document published per observation.
type Payload struct {
	Role      sidelink.Role                                 `json:"role"`
	Timestamp time.Time                                     `json:"timestamp"`
	Status    sidelink.Status                               `json:"status"`
	Error     string                                        `json:"error,omitempty"`
	Frame     int                                           `json:"frame"`
	Slot      int                                           `json:"slot"`
	Channels  map[sidelink.Channel]sidelink.ChannelCounters `json:"channels"`
	Quality   sidelink.Quality                              `json:"quality"`
	TxMbps    float64                                       `json:"tx_mbps"`
	RxMbps    float64                                       `json:"rx_mbps"`
}

// New creates a publisher; call Connect before observations flow.
func New(opts Options) *Publisher {
	if strings.TrimSpace(opts.TopicPrefix) == "" {
		opts.TopicPrefix = "sidelink"
	}
	opts.TopicPrefix = strings.TrimRight(opts.TopicPrefix, "/")
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("sidelinkmon-%d", time.Now().Unix())
	}
	return &Publisher{opts: opts}
}

// Connect establishes the broker connection. Later drops reconnect
// automatically.
func (p *Publisher) Connect() error {
	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", p.opts.Broker, p.opts.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(p.opts.ClientID)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Printf("MQTT: connected to %s", brokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT: connection lost: %v; will reconnect", err)
	})

	p.client = mqtt.NewClient(opts)
	log.Printf("MQTT: connecting to %s...", brokerURL)
	token := p.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publisher: connect %s: %w", brokerURL, token.Error())
	}
	return nil
}

// Topic returns the topic a role publishes to.
func (p *Publisher) Topic(role sidelink.Role) string {
	return p.opts.TopicPrefix + "/" + string(role)
}

// BuildPayload converts an observation into its published form.
func BuildPayload(o monitor.Observation) Payload {
	s := o.Snapshot
	channels := make(map[sidelink.Channel]sidelink.ChannelCounters, len(sidelink.Channels))
	for _, ch := range sidelink.Channels {
		channels[ch] = s.Counters(ch)
	}
	return Payload{
		Role:      o.Role,
		Timestamp: o.At,
		Status:    s.Status,
		Error:     s.Error,
		Frame:     s.Frame,
		Slot:      s.Slot,
		Channels:  channels,
		Quality:   o.Quality,
		TxMbps:    o.Rates.TxMbps,
		RxMbps:    o.Rates.RxMbps,
	}
}

// Observe publishes without waiting for the broker acknowledgement.
func (p *Publisher) Observe(o monitor.Observation) {
	if p == nil || p.client == nil || !o.Polled || !p.order.Fresh(o) {
		return
	}
	if !p.client.IsConnectionOpen() {
		p.skipped.Add(1)
		return
	}
	body, err := json.Marshal(BuildPayload(o))
	if err != nil {
		log.Printf("MQTT: encode %s observation: %v", o.Role, err)
		return
	}
	p.client.Publish(p.Topic(o.Role), p.opts.QoS, false, body)
	p.published.Add(1)
}

// Stats returns published and skipped observation counts.
func (p *Publisher) Stats() (published, skipped uint64) {
	return p.published.Load(), p.skipped.Load()
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.client.Disconnect(250)
	return nil
}
