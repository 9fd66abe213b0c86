package events

import (
	"context"
	"encoding/json"
	"testing"
)

func TestEpisodeEventJSON(t *testing.T) {
	data, err := json.Marshal(EpisodeEvent{EpisodeID: "ep-1", Policy: "MLP", NAnomalous: 5, Steps: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["n_anamolous"] != 5.0 {
		t.Fatalf("expected n_anamolous=5, got %v", fields["n_anamolous"])
	}
	if _, ok := fields["last_error"]; ok {
		t.Fatalf("last_error should be omitted when empty")
	}
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	if err := p.PublishEpisode(context.Background(), EpisodeEvent{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
