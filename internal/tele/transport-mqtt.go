package tele

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aps-lab/actuator/helpers"
	"github.com/aps-lab/actuator/log2"
	tele_api "github.com/aps-lab/actuator/tele"
	tele_config "github.com/aps-lab/actuator/tele/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
)

func TopicConnect(clientId string) string    { return fmt.Sprintf("%s/c", clientId) }
func TopicState(clientId string) string      { return fmt.Sprintf("%s/w/state", clientId) }
func TopicTransition(clientId string) string { return fmt.Sprintf("%s/w/transition", clientId) }
func TopicError(clientId string) string      { return fmt.Sprintf("%s/w/error", clientId) }

type transportMqtt struct {
	log            *log2.Log
	m              mqtt.Client
	mopt           *mqtt.ClientOptions
	stopCh         chan struct{}
	stopOnce       sync.Once
	networkTimeout time.Duration

	topicConnect    string
	topicState      string
	topicTransition string
	topicError      string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error {
	if teleConfig.MqttBroker == "" {
		return errors.NotValidf("tele mqtt_broker empty")
	}
	self.log = log
	mqttLog := log.Clone(log2.LInfo)
	if teleConfig.MqttLogDebug {
		mqttLog.SetLevel(log2.LDebug)
		mqtt.DEBUG = mqttLog
	}
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog

	clientId := teleConfig.ClientId
	credFun := func() (string, string) {
		return clientId, teleConfig.MqttPassword
	}
	self.topicConnect = TopicConnect(clientId)
	self.topicState = TopicState(clientId)
	self.topicTransition = TopicTransition(clientId)
	self.topicError = TopicError(clientId)

	self.networkTimeout = DefaultNetworkTimeout
	keepalive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, 60*time.Second)
	connectTimeout := self.networkTimeout * 3

	defaultHandler := func(_ mqtt.Client, msg mqtt.Message) {
		self.log.Infof("tele: unexpected mqtt message topic=%s", msg.Topic())
	}
	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetAutoReconnect(true).
		SetBinaryWill(self.topicConnect, willPayload, 1, true).
		SetCleanSession(false).
		SetClientID(clientId).
		SetConnectTimeout(connectTimeout).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(defaultHandler).
		SetKeepAlive(keepalive).
		SetMaxReconnectInterval(connectTimeout).
		SetOnConnectHandler(self.onConnect).
		SetConnectionLostHandler(self.onConnectionLost).
		SetOrderMatters(false).
		SetPingTimeout(self.networkTimeout).
		SetWriteTimeout(self.networkTimeout)
	self.m = mqtt.NewClient(self.mopt)
	self.stopCh = make(chan struct{})

	go self.online()
	return nil
}

func (self *transportMqtt) Close() {
	self.stopOnce.Do(func() {
		close(self.stopCh)
		if self.m.IsConnected() {
			self.m.Disconnect(uint(self.networkTimeout / time.Millisecond))
		}
	})
}

func (self *transportMqtt) SendState(payload []byte) bool {
	self.log.Debugf("transport sendstate payload=%x", payload)
	t := self.m.Publish(self.topicState, 1, true, payload)
	return self.tokenWait(t, "publish state") == nil
}

func (self *transportMqtt) SendEvent(e *tele_api.Event, payload []byte) bool {
	if !self.m.IsConnected() {
		return false
	}
	topic := self.topicTransition
	if e.Kind == tele_api.EventError {
		topic = self.topicError
	}
	t := self.m.Publish(topic, 1, false, payload)
	return self.tokenWait(t, "publish "+e.Kind) == nil
}

// online keeps trying first connect, paho auto reconnect takes over after that.
func (self *transportMqtt) online() {
	for {
		select {
		case <-self.stopCh:
			return
		default:
		}
		t := self.m.Connect()
		if self.tokenWait(t, "connect") == nil {
			return // success path
		}
		select {
		case <-self.stopCh:
			return
		case <-time.After(time.Second):
		}
	}
}

func (self *transportMqtt) onConnect(c mqtt.Client) {
	self.log.Infof("tele: mqtt connected")
	c.Publish(self.topicConnect, 1, true, []byte{0x01})
}

func (self *transportMqtt) onConnectionLost(_ mqtt.Client, err error) {
	self.log.Infof("tele: mqtt connection lost err=%v", err)
}

// Delivery problems are logged at debug level, log.Error would feed back into tele.
func (self *transportMqtt) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(self.networkTimeout) {
		err := errors.Errorf("%s timeout", tag)
		self.log.Debugf("tele: MQTT %s", err.Error())
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotate(err, tag)
		self.log.Debugf("tele: MQTT %s", err.Error())
		return err
	}
	return nil
}
