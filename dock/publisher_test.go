package dock

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

func makeResult(t *testing.T, ligandID string) *DockingResult {
	t.Helper()
	groups := []MatchingGroup{{{0, 0}, {1, 1}}}
	r, err := NewDockingResult("receptor", ligandID, DefaultMatchConfig(), groups, []mgl64.Mat4{mgl64.Ident4()})
	if err != nil {
		t.Fatalf("NewDockingResult() error: %v", err)
	}
	return r
}

func connectedPublisher(t *testing.T, prefix string) (*Publisher, *MockClient) {
	t.Helper()
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisherWithConfig(mock, PublishConfig{TopicPrefix: prefix, QoS: 1, Retain: true})
	return p, mock
}

func TestNewPublisher(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("MQTT_PUBLISH_PREFIX", "")
		p := NewPublisher(nil)
		if p.publishPrefix != DefaultTopicPrefix {
			t.Errorf("prefix = %q, want %q", p.publishPrefix, DefaultTopicPrefix)
		}
		if p.qos != 0 || !p.retain {
			t.Errorf("qos/retain = %d/%v, want 0/true", p.qos, p.retain)
		}
	})

	t.Run("environment prefix wins", func(t *testing.T) {
		t.Setenv("MQTT_PUBLISH_PREFIX", "from-env")
		p := NewPublisherWithConfig(nil, PublishConfig{TopicPrefix: "from-config"})
		if p.publishPrefix != "from-env" {
			t.Errorf("prefix = %q, want from-env", p.publishPrefix)
		}
	})

	t.Run("config settings applied", func(t *testing.T) {
		t.Setenv("MQTT_PUBLISH_PREFIX", "")
		p := NewPublisherWithConfig(nil, PublishConfig{TopicPrefix: "custom", QoS: 2, Retain: false})
		if p.publishPrefix != "custom" || p.qos != 2 || p.retain {
			t.Errorf("publisher = %q/%d/%v, want custom/2/false", p.publishPrefix, p.qos, p.retain)
		}
	})

	t.Run("empty config prefix keeps default", func(t *testing.T) {
		t.Setenv("MQTT_PUBLISH_PREFIX", "")
		p := NewPublisherWithConfig(nil, PublishConfig{})
		if p.publishPrefix != DefaultTopicPrefix {
			t.Errorf("prefix = %q, want %q", p.publishPrefix, DefaultTopicPrefix)
		}
	})
}

func TestPublishResultNotConnected(t *testing.T) {
	t.Run("nil client", func(t *testing.T) {
		t.Setenv("MQTT_PUBLISH_PREFIX", "")
		p := NewPublisher(nil)
		err := p.PublishResult(makeResult(t, "probe"))
		if err == nil || !strings.Contains(err.Error(), "MQTT client not connected") {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("disconnected client", func(t *testing.T) {
		t.Setenv("MQTT_PUBLISH_PREFIX", "")
		mock := NewMockClient()
		p := NewPublisher(mock)
		err := p.PublishResult(makeResult(t, "probe"))
		if err == nil || !strings.Contains(err.Error(), "MQTT client not connected") {
			t.Errorf("error = %v", err)
		}
		if len(mock.GetPublishedMessages()) != 0 {
			t.Error("messages published while disconnected")
		}
	})
}

func TestPublishResult(t *testing.T) {
	p, mock := connectedPublisher(t, "dockmesh-test")
	r := makeResult(t, "probe")

	if err := p.PublishResult(r); err != nil {
		t.Fatalf("PublishResult() error: %v", err)
	}

	msgs := mock.GetPublishedMessages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want result + summary", len(msgs))
	}

	if msgs[0].Topic != "dockmesh-test/probe/result" {
		t.Errorf("result topic = %q", msgs[0].Topic)
	}
	if msgs[0].QoS != 1 || !msgs[0].Retain {
		t.Errorf("result qos/retain = %d/%v, want 1/true", msgs[0].QoS, msgs[0].Retain)
	}
	var published DockingResult
	if err := json.Unmarshal(msgs[0].Payload, &published); err != nil {
		t.Fatalf("unmarshal result payload: %v", err)
	}
	if published.RunID != r.RunID || published.LigandID != "probe" {
		t.Errorf("published run = %q/%q, want %q/probe", published.RunID, published.LigandID, r.RunID)
	}

	if msgs[1].Topic != "dockmesh-test/summary" {
		t.Errorf("summary topic = %q", msgs[1].Topic)
	}

	latest, ok := p.GetLatest("probe")
	if !ok || latest.RunID != r.RunID {
		t.Errorf("GetLatest() = %v, %v", latest, ok)
	}
}

func TestPublishSummarySorted(t *testing.T) {
	p, mock := connectedPublisher(t, "dockmesh-test")

	if err := p.PublishResult(makeResult(t, "zeta")); err != nil {
		t.Fatalf("publish zeta: %v", err)
	}
	if err := p.PublishResult(makeResult(t, "alpha")); err != nil {
		t.Fatalf("publish alpha: %v", err)
	}

	msgs := mock.GetPublishedMessages()
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}

	var summary struct {
		Ligands []struct {
			LigandID string `json:"ligandId"`
			RunID    string `json:"runId"`
		} `json:"ligands"`
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(msgs[3].Payload, &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if len(summary.Ligands) != 2 {
		t.Fatalf("summary has %d ligands, want 2", len(summary.Ligands))
	}
	if summary.Ligands[0].LigandID != "alpha" || summary.Ligands[1].LigandID != "zeta" {
		t.Errorf("summary order = %q, %q, want alpha, zeta",
			summary.Ligands[0].LigandID, summary.Ligands[1].LigandID)
	}
	if summary.Timestamp == 0 {
		t.Error("summary timestamp missing")
	}
}

func TestPublishResultError(t *testing.T) {
	p, mock := connectedPublisher(t, "dockmesh-test")
	mock.SetPublishError(errors.New("broker rejected"))

	err := p.PublishResult(makeResult(t, "probe"))
	if err == nil || !strings.Contains(err.Error(), "publishing to dockmesh-test/probe/result") {
		t.Errorf("error = %v", err)
	}
}

func TestPublisherClearResult(t *testing.T) {
	p, _ := connectedPublisher(t, "dockmesh-test")
	if err := p.PublishResult(makeResult(t, "probe")); err != nil {
		t.Fatalf("PublishResult() error: %v", err)
	}

	p.ClearResult("probe")
	if _, ok := p.GetLatest("probe"); ok {
		t.Error("result still present after ClearResult")
	}
}

func TestPublisherSetQoS(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	p := NewPublisher(nil)

	p.SetQoS(2)
	if p.qos != 2 {
		t.Errorf("qos = %d, want 2", p.qos)
	}

	// Invalid levels are ignored.
	p.SetQoS(3)
	if p.qos != 2 {
		t.Errorf("qos = %d after invalid set, want 2", p.qos)
	}
}

func BenchmarkPublishResult(b *testing.B) {
	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisherWithConfig(mock, PublishConfig{TopicPrefix: "bench"})

	groups := []MatchingGroup{{{0, 0}, {1, 1}}}
	r, err := NewDockingResult("receptor", "probe", DefaultMatchConfig(), groups, []mgl64.Mat4{mgl64.Ident4()})
	if err != nil {
		b.Fatalf("NewDockingResult: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := p.PublishResult(r); err != nil {
			b.Fatalf("PublishResult: %v", err)
		}
		mock.ClearPublishedMessages()
	}
}
