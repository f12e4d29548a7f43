// Command ddsping is a minimal two-role demo participant: it publishes a
// timestamped ping on a topic (-mode pub) or subscribes and prints every
// sample it receives (-mode sub), driving the full ddsapi path -
// discovery, matching, reliable delivery - over a real UDP transport.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/go-rtps/rtps/core/config"
	clog "github.com/go-rtps/rtps/core/log"
	"github.com/go-rtps/rtps/core/qos"
	"github.com/go-rtps/rtps/core/types"
	"github.com/go-rtps/rtps/ddsapi"
)

const typeName = "Ping"

// pingSample is the one XTypes stand-in this demo needs: a fixed text
// payload, keyed by the participant name that sent it.
type pingSample struct {
	who string
	at  time.Time
}

func (p pingSample) Serialize(key bool) ([]byte, error) {
	if key {
		return []byte(p.who), nil
	}
	return []byte(fmt.Sprintf("%s@%s", p.who, p.at.Format(time.RFC3339Nano))), nil
}

func main() {
	var (
		configPath string
		mode       string
		name       string
		topicName  string
		reliable   bool
		period     time.Duration
	)
	flag.StringVar(&configPath, "config", "", "participant TOML config (defaults built in if empty)")
	flag.StringVar(&mode, "mode", "pub", "pub or sub")
	flag.StringVar(&name, "name", "ddsping", "name stamped into published samples")
	flag.StringVar(&topicName, "topic", "ping", "topic name")
	flag.BoolVar(&reliable, "reliable", true, "use Reliable instead of BestEffort QoS")
	flag.DurationVar(&period, "period", time.Second, "publish interval (pub mode only)")
	flag.Parse()

	logger := clog.NewClientLogger("ddsping")

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			logger.Fatal("load config", "err", err)
		}
		cfg = loaded
	}

	dp, err := ddsapi.DomainParticipantFactory{}.CreateParticipant(cfg)
	if err != nil {
		logger.Fatal("create participant", "err", err)
	}
	if err := dp.RegisterType(ddsapi.TypeSupport{TypeName: typeName}); err != nil {
		logger.Fatal("register type", "err", err)
	}
	if err := dp.Enable(); err != nil {
		logger.Fatal("enable participant", "err", err)
	}
	defer dp.Close()

	topic, err := dp.CreateTopic(topicName, typeName)
	if err != nil {
		logger.Fatal("create topic", "err", err)
	}

	policies := qos.Default()
	if reliable {
		policies.Reliability.Kind = qos.Reliable
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	switch mode {
	case "pub":
		runPublisher(dp, topic, policies, name, period, stop, logger)
	case "sub":
		runSubscriber(dp, topic, policies, stop, logger)
	default:
		logger.Fatal("unknown -mode", "mode", mode)
	}
}

func runPublisher(dp *ddsapi.DomainParticipant, topic *ddsapi.Topic, policies qos.Policies, name string, period time.Duration, stop chan os.Signal, logger *charmlog.Logger) {
	pub, err := dp.CreatePublisher()
	if err != nil {
		logger.Error("create publisher", "err", err)
		return
	}
	dw, err := pub.CreateDataWriter(topic, policies)
	if err != nil {
		logger.Error("create data writer", "err", err)
		return
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			sample := pingSample{who: name, at: now}
			if err := dw.Write(sample, types.InstanceHandle{}); err != nil {
				logger.Error("write", "err", err)
				continue
			}
			logger.Info("wrote", "who", name, "at", now.Format(time.RFC3339Nano))
		}
	}
}

func runSubscriber(dp *ddsapi.DomainParticipant, topic *ddsapi.Topic, policies qos.Policies, stop chan os.Signal, logger *charmlog.Logger) {
	sub, err := dp.CreateSubscriber()
	if err != nil {
		logger.Error("create subscriber", "err", err)
		return
	}
	dr, err := sub.CreateDataReader(topic, policies)
	if err != nil {
		logger.Error("create data reader", "err", err)
		return
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			samples, err := dr.Take()
			if err != nil {
				continue
			}
			for _, s := range samples {
				logger.Info("received", "payload", string(s.Change.DataValue))
			}
		}
	}
}
