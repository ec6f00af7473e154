package ipc

import (
	"github.com/humbaba/groundstation/internal/hyi"
	"github.com/humbaba/groundstation/internal/monitoring"
	"github.com/humbaba/groundstation/internal/pipeline"
	"github.com/humbaba/groundstation/internal/telemetry"
)

// LogPresenter writes everything to a Logger. It is the display of last
// resort when no redis is configured.
type LogPresenter struct {
	log monitoring.Logger
}

// NewLogPresenter returns a presenter logging through l.
func NewLogPresenter(l monitoring.Logger) *LogPresenter {
	if l == nil {
		l = monitoring.NewLogger("telemetry", monitoring.LevelInfo)
	}
	return &LogPresenter{log: l}
}

func (p *LogPresenter) ShowTelemetry(rec telemetry.Record) {
	p.log.Infof("%s", rec)
}

func (p *LogPresenter) ShowStatus(st pipeline.Status) {
	p.log.Infof("status: %s (records=%d malformed=%d sent=%d)", st.Message, st.Records, st.Malformed, st.PacketsSent)
}

func (p *LogPresenter) ShowPacketSent(pkt hyi.Packet) {
	p.log.Debugf("judge frame counter=%d %s", pkt.Counter(), pkt.Hex())
}
