package tele

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io/ioutil"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/portal/helpers"
	tele_config "github.com/temoto/portal/internal/tele/config"
	"github.com/temoto/portal/log2"
)

func TopicState(clientID string) string  { return clientID + "/state" }
func TopicValues(clientID string) string { return clientID + "/values" }
func TopicError(clientID string) string  { return clientID + "/error" }

type transportMqtt struct {
	log    *log2.Log
	m      mqtt.Client
	mopt   *mqtt.ClientOptions
	stopCh chan struct{}

	networkTimeout time.Duration
	stateMu        sync.Mutex
	state          []byte // republished on every connect
	topicState     string
	topicValues    string
	topicError     string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte) error {
	self.log = log
	mqttLog := log.Clone(log2.LError)
	if teleConfig.MqttLogDebug {
		mqttLog.SetLevel(log2.LDebug)
	}
	mqtt.CRITICAL = mqttLog
	mqtt.ERROR = mqttLog
	mqtt.WARN = mqttLog
	if teleConfig.MqttLogDebug {
		mqtt.DEBUG = mqttLog
	}

	if _, err := url.ParseRequestURI(teleConfig.MqttBroker); err != nil {
		return errors.Annotatef(err, "tele mqtt_broker=%s", teleConfig.MqttBroker)
	}

	clientID := teleConfig.ClientID
	credFun := func() (string, string) {
		return clientID, teleConfig.MqttPassword
	}
	self.topicState = TopicState(clientID)
	self.topicValues = TopicValues(clientID)
	self.topicError = TopicError(clientID)

	self.networkTimeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	if self.networkTimeout < 1*time.Second {
		self.networkTimeout = 1 * time.Second
	}
	connectTimeout := self.networkTimeout * 3
	keepaliveTimeout := helpers.IntSecondDefault(teleConfig.KeepaliveSec, self.networkTimeout/2)

	defaultHandler := func(_ mqtt.Client, msg mqtt.Message) {
		self.log.Errorf("tele: unexpected mqtt message topic=%s", msg.Topic())
	}

	tlsconf := new(tls.Config)
	if teleConfig.TlsCaFile != "" {
		tlsconf.RootCAs = x509.NewCertPool()
		cabytes, err := ioutil.ReadFile(teleConfig.TlsCaFile)
		if err != nil {
			return errors.Annotate(err, "tele TLS")
		}
		tlsconf.RootCAs.AppendCertsFromPEM(cabytes)
	}
	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetAutoReconnect(true).
		SetBinaryWill(self.topicState, willPayload, 1, true).
		SetCleanSession(false).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetCredentialsProvider(credFun).
		SetDefaultPublishHandler(defaultHandler).
		SetOnConnectHandler(self.onConnect).
		SetKeepAlive(keepaliveTimeout).
		SetMaxReconnectInterval(connectTimeout).
		SetOrderMatters(false).
		SetPingTimeout(self.networkTimeout).
		SetTLSConfig(tlsconf).
		SetWriteTimeout(self.networkTimeout)
	self.m = mqtt.NewClient(self.mopt)
	self.stopCh = make(chan struct{})

	go self.online()
	return nil
}

func (self *transportMqtt) Close() {
	close(self.stopCh)
	if self.m.IsConnected() {
		self.m.Disconnect(uint(self.networkTimeout / time.Millisecond))
	}
}

func (self *transportMqtt) SendState(payload []byte) bool {
	self.log.Debugf("transport sendstate payload=%x", payload)
	self.stateMu.Lock()
	self.state = append(self.state[:0], payload...)
	self.stateMu.Unlock()
	if !self.m.IsConnected() {
		return false
	}
	t := self.m.Publish(self.topicState, 1, true, payload)
	return self.tokenWait(t, "publish state") == nil
}

func (self *transportMqtt) onConnect(c mqtt.Client) {
	self.stateMu.Lock()
	payload := append([]byte(nil), self.state...)
	self.stateMu.Unlock()
	if len(payload) == 0 {
		return
	}
	self.log.Debugf("tele: mqtt connected, state=%x", payload)
	t := c.Publish(self.topicState, 1, true, payload)
	_ = self.tokenWait(t, "publish state")
}

func (self *transportMqtt) SendValues(payload []byte) bool {
	t := self.m.Publish(self.topicValues, 1, true, payload)
	return self.tokenWait(t, "publish values") == nil
}

func (self *transportMqtt) SendError(payload []byte) bool {
	t := self.m.Publish(self.topicError, 1, false, payload)
	return self.tokenWait(t, "publish error") == nil
}

func (self *transportMqtt) online() {
	for self.isRunning() {
		if self.m.IsConnected() {
			return
		}
		t := self.m.Connect()
		if self.tokenWait(t, "connect") == nil {
			return // success path
		}
		select {
		case <-time.After(time.Second):
		case <-self.stopCh:
			return
		}
	}
}

func (self *transportMqtt) isRunning() bool {
	select {
	case <-self.stopCh:
		return false
	default:
		return true
	}
}

func (self *transportMqtt) tokenWait(t mqtt.Token, tag string) error {
	if !t.WaitTimeout(self.networkTimeout) {
		err := errors.Timeoutf("tele: MQTT %s", tag)
		self.log.Error(err)
		return err
	}
	if err := t.Error(); err != nil {
		err = errors.Annotatef(err, "tele: MQTT %s", tag)
		self.log.Error(err)
		return err
	}
	return nil
}
