package tele

import (
	"context"
	"time"

	"github.com/aps-lab/actuator/log2"
	tele_api "github.com/aps-lab/actuator/tele"
	tele_config "github.com/aps-lab/actuator/tele/config"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/influxdata/influxdb-client-go/api/write"
	"github.com/juju/errors"
)

const (
	MeasurementTransition = "actuator.transition"
	MeasurementError      = "actuator.error"
	MeasurementState      = "actuator.state"
)

// transportInflux writes events as points with non-blocking WriteApi.
// Write failures surface asynchronously on Errors(), so Send* always succeed.
type transportInflux struct {
	log      *log2.Log
	client   influxdb2.Client
	w        api.WriteApi
	clientId string
}

func (self *transportInflux) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error {
	if teleConfig.InfluxServer == "" {
		return errors.NotValidf("tele influx_server empty")
	}
	if teleConfig.InfluxOrg == "" || teleConfig.InfluxBucket == "" {
		return errors.NotValidf("tele influx_org/influx_bucket empty")
	}
	self.log = log
	self.clientId = teleConfig.ClientId
	self.client = influxdb2.NewClient(teleConfig.InfluxServer, teleConfig.InfluxToken)
	self.w = self.client.WriteApi(teleConfig.InfluxOrg, teleConfig.InfluxBucket)

	errorsCh := self.w.Errors()
	go func() {
		for err := range errorsCh {
			self.log.Infof("tele: influx write err=%v", err)
		}
	}()
	return nil
}

func (self *transportInflux) Close() {
	self.w.Flush()
	self.w.Close()
	self.client.Close()
}

func (self *transportInflux) SendState(payload []byte) bool {
	if len(payload) == 0 {
		return true
	}
	s := tele_api.State(payload[0])
	p := influxdb2.NewPoint(MeasurementState,
		map[string]string{"client_id": self.clientId},
		map[string]interface{}{"state": s.String(), "code": int64(s)},
		time.Now(),
	)
	self.w.WritePoint(p)
	return true
}

func (self *transportInflux) SendEvent(e *tele_api.Event, payload []byte) bool {
	self.w.WritePoint(EventPoint(e))
	return true
}

func EventPoint(e *tele_api.Event) *write.Point {
	tags := map[string]string{"client_id": e.ClientId}
	ts := time.Unix(0, e.Time)
	if e.Kind == tele_api.EventError {
		return influxdb2.NewPoint(MeasurementError, tags,
			map[string]interface{}{"message": e.Error}, ts)
	}
	fields := map[string]interface{}{
		"cycle":     int64(e.Cycle),
		"position":  int64(e.Position),
		"dwell_sec": e.DwellSec,
		"deadline":  e.Deadline,
	}
	if e.Stat != nil {
		fields["sent"] = int64(e.Stat.Sent)
		fields["retried"] = int64(e.Stat.Retried)
	}
	return influxdb2.NewPoint(MeasurementTransition, tags, fields, ts)
}
