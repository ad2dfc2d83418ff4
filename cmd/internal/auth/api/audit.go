package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/prometheus/client_golang/prometheus"
)

// auditor records auth events as structured log lines and as a labelled counter.
type auditor struct {
	log    *slog.Logger
	events *prometheus.CounterVec
}

func newAuditor(log *slog.Logger, reg prometheus.Registerer) (*auditor, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidtube",
		Name:      "auth_events_total",
		Help:      "Authentication events by event and result.",
	}, []string{"event", "result"})

	if reg != nil {
		if err := reg.Register(events); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
			existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, err
			}
			events = existing
		}
	}
	return &auditor{log: log, events: events}, nil
}

// record never sees tokens or passwords; callers pass identifiers only.
func (a *auditor) record(ctx context.Context, event, result string, ip net.IP, attrs ...slog.Attr) {
	a.events.WithLabelValues(event, result).Inc()

	all := make([]slog.Attr, 0, len(attrs)+2)
	all = append(all, slog.String("result", result))
	if ip != nil {
		all = append(all, slog.String("ip", ip.String()))
	}
	all = append(all, attrs...)

	lvl := slog.LevelInfo
	if result != "success" {
		lvl = slog.LevelWarn
	}
	a.log.LogAttrs(ctx, lvl, "auth."+event, all...)
}
