package dock

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/kwv/dockmesh/internal/logger"
)

// DefaultTopicPrefix is the topic prefix for published results and the
// rematch control topic.
const DefaultTopicPrefix = "dockmesh"

// Publisher manages publishing docking results to MQTT: one full result per
// ligand topic plus a combined summary topic.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	latest        map[string]*DockingResult
	mu            sync.RWMutex
}

// NewPublisher creates a result publisher. The MQTT_PUBLISH_PREFIX
// environment variable overrides the default topic prefix. If client is nil,
// publishing is disabled (for testing).
func NewPublisher(client mqtt.Client) *Publisher {
	prefix := os.Getenv("MQTT_PUBLISH_PREFIX")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,    // fire and forget; results are superseded anyway
		retain:        true, // retain so late subscribers get the latest pose
		latest:        make(map[string]*DockingResult),
	}
}

// NewPublisherWithConfig creates a result publisher with settings from the
// publish config. Environment variables still win for the prefix.
func NewPublisherWithConfig(client mqtt.Client, cfg PublishConfig) *Publisher {
	p := NewPublisher(client)
	if os.Getenv("MQTT_PUBLISH_PREFIX") == "" && cfg.TopicPrefix != "" {
		p.publishPrefix = cfg.TopicPrefix
	}
	p.SetQoS(cfg.QoS)
	p.SetRetain(cfg.Retain)
	return p
}

// PublishResult publishes one ligand's docking result to its individual topic
// and refreshes the combined summary topic.
func (p *Publisher) PublishResult(r *DockingResult) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	p.mu.Lock()
	p.latest[r.LigandID] = r
	p.mu.Unlock()

	if err := p.publishIndividual(r); err != nil {
		logger.Error("error publishing result", zap.String("ligand", r.LigandID), zap.Error(err))
		return err
	}

	if err := p.publishSummary(); err != nil {
		logger.Error("error publishing summary", zap.Error(err))
		return err
	}

	return nil
}

// publishIndividual publishes the full result to {prefix}/{ligandID}/result.
func (p *Publisher) publishIndividual(r *DockingResult) error {
	topic := fmt.Sprintf("%s/%s/result", p.publishPrefix, r.LigandID)

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	logger.Info("published result",
		zap.String("ligand", r.LigandID),
		zap.Int("groups", r.Stats.GroupCount),
		zap.Int("largest", r.Stats.LargestGroup))
	return nil
}

// resultSummary is the condensed per-ligand entry on the summary topic.
type resultSummary struct {
	LigandID  string      `json:"ligandId"`
	RunID     string      `json:"runId"`
	Timestamp time.Time   `json:"timestamp"`
	Stats     ResultStats `json:"stats"`
}

// publishSummary publishes condensed entries for every known ligand to
// {prefix}/summary, sorted by ligand ID for stable payloads.
func (p *Publisher) publishSummary() error {
	p.mu.RLock()
	summaries := make([]resultSummary, 0, len(p.latest))
	for _, r := range p.latest {
		summaries = append(summaries, resultSummary{
			LigandID:  r.LigandID,
			RunID:     r.RunID,
			Timestamp: r.Timestamp,
			Stats:     r.Stats,
		})
	}
	p.mu.RUnlock()

	if len(summaries) == 0 {
		return nil
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LigandID < summaries[j].LigandID
	})

	topic := fmt.Sprintf("%s/summary", p.publishPrefix)

	message := map[string]interface{}{
		"ligands":   summaries,
		"timestamp": time.Now().Unix(),
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	return nil
}

// GetLatest returns the last published result for a ligand.
func (p *Publisher) GetLatest(ligandID string) (*DockingResult, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.latest[ligandID]
	return r, ok
}

// ClearResult removes a ligand's result (e.g. when its surface goes away).
func (p *Publisher) ClearResult(ligandID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.latest, ligandID)
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
