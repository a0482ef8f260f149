package dock

import (
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/kwv/dockmesh/internal/logger"
)

// MessageHandler is called when a surface payload is received.
// rawPayload is provided so callers can persist or replay payloads that fail
// to decode.
type MessageHandler func(surfaceID string, rawPayload []byte, surface *Surface, err error)

// RematchHandler is called when a rematch request arrives on the control
// topic. ligandID is "all" to request every ligand.
type RematchHandler func(ligandID string)

// MQTTClient manages the MQTT connection and subscriptions for surface data.
// Callers own the instance; there is no package-level client.
type MQTTClient struct {
	client         mqtt.Client
	config         *Config
	messageHandler MessageHandler
	rematchHandler RematchHandler
	isConnected    bool
	mu             sync.RWMutex
}

// NewMQTTClient builds and starts an MQTT client for the configured surface
// topics. Environment variables MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME,
// and MQTT_PASSWORD override the config. When no broker is configured, MQTT
// is disabled and (nil, nil) is returned.
func NewMQTTClient(config *Config, handler MessageHandler) (*MQTTClient, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		logger.Info("MQTT disabled: no broker configured")
		return nil, nil
	}

	client := &MQTTClient{
		config:         config,
		messageHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "dockmesh"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)   // Longer than default 30s to reduce spurious disconnects
	opts.SetPingTimeout(10 * time.Second) // Timeout for ping response
	opts.SetCleanSession(false)           // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false)           // Allow concurrent processing

	// Callbacks
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	// Connect asynchronously with retry
	go client.connectWithRetry()

	return client, nil
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		logger.Info("connecting to MQTT broker")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				logger.Info("connected to MQTT broker")
				c.setConnected(true)
				return
			}
			logger.Warn("MQTT connection failed", zap.Error(token.Error()))
		} else {
			logger.Warn("MQTT connection timeout")
		}

		logger.Info("retrying MQTT connection", zap.Duration("delay", retryDelay))
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect is called when the MQTT connection is established
func (c *MQTTClient) onConnect(client mqtt.Client) {
	logger.Info("MQTT connected, subscribing to surface topics")
	c.setConnected(true)

	for _, surface := range c.config.Surfaces {
		if surface.Topic == "" {
			logger.Warn("surface has no topic configured", zap.String("surface", surface.ID))
			continue
		}

		token := client.Subscribe(surface.Topic, 0, c.createMessageHandler(surface.ID))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			logger.Error("error subscribing", zap.String("topic", surface.Topic), zap.Error(token.Error()))
		} else {
			logger.Info("subscribed", zap.String("topic", surface.Topic), zap.String("surface", surface.ID))
		}
	}

	// Control topic for externally requested rematches
	rematch := RematchTopic(c.config.MQTT.Publish.TopicPrefix)
	token := client.Subscribe(rematch, 0, c.handleRematchMessage)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		logger.Error("error subscribing", zap.String("topic", rematch), zap.Error(token.Error()))
	}
}

// onConnectionLost is called when the MQTT connection is lost.
// Auto-reconnect is enabled, so this is typically a transient event.
func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	logger.Warn("MQTT connection interrupted, auto-reconnect will retry", zap.Error(err))
	c.setConnected(false)
}

// onReconnecting is called when the client attempts to reconnect
func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	logger.Info("MQTT reconnecting")
}

// createMessageHandler creates a handler function for a specific surface's topic
func (c *MQTTClient) createMessageHandler(surfaceID string) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		logger.Debug("received surface data",
			zap.String("surface", surfaceID),
			zap.String("topic", msg.Topic()),
			zap.Int("bytes", len(payload)))

		surface, err := DecodeSurfaceData(payload)
		if err != nil {
			logger.Error("error decoding surface data", zap.String("surface", surfaceID), zap.Error(err))
			if c.messageHandler != nil {
				c.messageHandler(surfaceID, payload, nil, err)
			}
			return
		}

		if c.messageHandler != nil {
			c.messageHandler(surfaceID, payload, surface, nil)
		}
	}
}

// SetRematchHandler registers a callback invoked on rematch control messages.
func (c *MQTTClient) SetRematchHandler(handler RematchHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rematchHandler = handler
}

func (c *MQTTClient) getRematchHandler() RematchHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rematchHandler
}

// RematchTopic returns the control topic for rematch requests under the given
// publish prefix.
func RematchTopic(prefix string) string {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/rematch"
}

// handleRematchMessage parses a rematch request. The payload is a ligand ID,
// or "all" (or empty) for every ligand.
func (c *MQTTClient) handleRematchMessage(client mqtt.Client, msg mqtt.Message) {
	ligandID := strings.TrimSpace(string(msg.Payload()))
	if ligandID == "" {
		ligandID = "all"
	}
	logger.Info("rematch requested", zap.String("ligand", ligandID))

	handler := c.getRematchHandler()
	if handler != nil {
		handler(ligandID)
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// setConnected updates the connection status
func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		logger.Info("disconnecting from MQTT broker")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client
// This is used for testing with mock clients
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler MessageHandler) *MQTTClient {
	return &MQTTClient{
		client:         client,
		config:         config,
		messageHandler: handler,
	}
}
