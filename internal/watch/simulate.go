package watch

import (
	"context"
	"fmt"
)

type sampleEvent struct {
	eventType   string
	description string
	metadata    map[string]any
}

// sampleEvents is cycled through by Simulate. It spans every severity tier.
var sampleEvents = []sampleEvent{
	{"malware_detection", "Malware signature detected on endpoint", map[string]any{"host": "ws-114", "engine": "clamav"}},
	{"login_attempt", "Suspicious login from unfamiliar location", map[string]any{"user": "jdoe", "country": "RO", "attempts": 4}},
	{"network_traffic", "Unusual outbound traffic volume to rare destination", map[string]any{"bytes": 48210000, "dest_port": 8443}},
	{"data_breach", "Possible breach: customer table exported by service account", map[string]any{"rows": 120000, "account": "svc-report"}},
	{"phishing_email", "Phishing email reported by user", map[string]any{"sender": "billing@examp1e.com", "reported_by": "asmith"}},
	{"ddos", "Volumetric attack against public load balancer", map[string]any{"pps": 2300000, "target": "lb-edge-1"}},
	{"config_change", "Firewall rule updated during maintenance window", map[string]any{"rule": "allow-443", "change_ticket": "CHG-1042"}},
	{"threat_intel", "Threat feed match on outbound DNS query", map[string]any{"domain": "bad.example.net", "feed": "abuse.ch"}},
	{"process_anomaly", "Anomaly in process tree: shell spawned by web server", map[string]any{"parent": "nginx", "child": "/bin/sh"}},
	{"heartbeat", "Agent checked in", map[string]any{"agent_version": "2.4.1"}},
}

// Simulate creates count sample events against watchlistID through the normal
// creation path, dispatching one independent analysis task per event.
func (s *Service) Simulate(ctx context.Context, watchlistID string, count int) ([]*Event, error) {
	if count < 1 || count > s.maxSimulate {
		return nil, invalid("count", "must be between 1 and %d", s.maxSimulate)
	}
	if _, ok, err := s.store.GetWatchlist(ctx, watchlistID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrWatchlistNotFound
	}

	events := make([]*Event, 0, count)
	for i := 0; i < count; i++ {
		sample := sampleEvents[i%len(sampleEvents)]
		meta := make(map[string]any, len(sample.metadata)+1)
		for k, v := range sample.metadata {
			meta[k] = v
		}
		meta["simulated"] = true

		ev, err := s.CreateEvent(ctx, EventInput{
			Type:        sample.eventType,
			Description: sample.description,
			Metadata:    meta,
			WatchlistID: watchlistID,
		})
		if err != nil {
			return events, fmt.Errorf("simulate event %d of %d: %w", i+1, count, err)
		}
		events = append(events, ev)
	}

	s.logger.Info(ctx, "simulated events", "watchlist_id", watchlistID, "count", len(events))
	return events, nil
}
