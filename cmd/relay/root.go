package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	cmdUtil "github.com/framelink/framelink/cmd/util"
	"github.com/framelink/framelink/link"
	"github.com/framelink/framelink/link/conn"
	"github.com/framelink/framelink/link/mux"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("link")

var (
	relayListen      string
	relayDial        string
	relayMetricsAddr string
	relayRecvTimeout time.Duration
	relayConfig      link.Config

	RelayCmd = &cobra.Command{
		Use:   "relay",
		Short: "Bridge framed traffic between two endpoints",
		Long: `Bridge framed traffic between a listen endpoint and a dial endpoint.
Each accepted connection is paired with a fresh connection to the dial
endpoint and frames are forwarded in both directions. Stream endpoints use a
4-byte big-endian length prefix framing; datagram endpoints carry one frame
per message. Endpoints are given as scheme://address with schemes tcp, unix,
udp, ws and serial (dial side only for udp, ws and serial).`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "listen"
	RelayCmd.PersistentFlags().String(key, "tcp://127.0.0.1:7600", cmdUtil.WrapString("Endpoint to accept connections on (tcp:// or unix://)"))

	key = "dial"
	RelayCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Endpoint to forward frames to (tcp, unix, udp, ws or serial scheme)"))

	key = "metrics-addr"
	RelayCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Optional address to expose Prometheus metrics on (e.g. 127.0.0.1:9090)"))

	key = "recv-timeout"
	RelayCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Idle budget per relayed direction. A side that stays silent this long is torn down (0 disables)"))

	cmdUtil.SetupAdapterFlags(RelayCmd)
}

// processConfig reads the configuration from command line flags and
// environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	relayListen = viper.GetString("listen")
	relayDial = viper.GetString("dial")
	relayMetricsAddr = viper.GetString("metrics-addr")
	relayRecvTimeout = viper.GetDuration("recv-timeout")
	relayConfig = cmdUtil.GetAdapterConfig()

	if relayDial == "" {
		return fmt.Errorf("--dial is required")
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {
	link.InitLoggers(relayConfig.LogLevel)

	Logger.Infof("starting relay %s -> %s", relayListen, relayDial)
	Logger.Infof(relayConfig.String())

	registry := mux.New()

	if relayMetricsAddr != "" {
		go serveMetrics(relayMetricsAddr)
	}

	listenEP, err := parseEndpoint(relayListen)
	if err != nil {
		return err
	}
	if _, err := parseEndpoint(relayDial); err != nil {
		return err
	}

	listener, err := listen(listenEP)
	if err != nil {
		return err
	}

	// Accept connections
	go func() {
		for {
			raw, err := listener.Accept()
			if err != nil {
				Logger.Debugf("accept: %v", err)
				return
			}
			go bridge(registry, listenEP, raw)
		}
	}()

	// Block until interrupted, then tear down in order
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	Logger.Infof("shutting down")
	_ = listener.Close()
	registry.CloseAll()
	return nil
}

// bridge pairs one accepted transport with a fresh connection to the dial
// endpoint and forwards frames in both directions until either side closes.
func bridge(registry *mux.Registry, listenEP endpoint, raw net.Conn) {
	local, err := wrapAccepted(listenEP, raw)
	if err != nil {
		Logger.Errorf("failed to wrap accepted connection: %v", err)
		raw.Close()
		return
	}

	remote, err := dial(relayDial)
	if err != nil {
		Logger.Errorf("failed to dial %s: %v", relayDial, err)
		local.Close()
		return
	}

	observer := link.ObserverFunc(func(id uint64, from, to link.State, cause error) {
		if cause != nil && cause != link.ErrTransportClosed {
			Logger.Warningf("connection %d: %s -> %s: %v", id, from, to, cause)
		}
		if to == link.StateClosed {
			registry.Remove(id)
		}
	})

	localConn, err := newConn(local, observer)
	if err != nil {
		Logger.Errorf("failed to create connection: %v", err)
		local.Close()
		remote.Close()
		return
	}
	remoteConn, err := newConn(remote, observer)
	if err != nil {
		Logger.Errorf("failed to create connection: %v", err)
		localConn.Close()
		remote.Close()
		return
	}

	registry.Register(localConn)
	registry.Register(remoteConn)

	go pipeFrames(localConn, remoteConn, relayRecvTimeout)
	go pipeFrames(remoteConn, localConn, relayRecvTimeout)
}

// newConn creates a connection with the relay's framing resolver when the
// transport needs one.
func newConn(t link.Transport, obs link.Observer) (*conn.Conn, error) {
	opts := []conn.Option{
		conn.WithConfig(relayConfig),
		conn.WithObserver(obs),
	}
	if t.Kind() == link.KindStream {
		opts = append(opts, conn.WithResolver(prefixResolver(relayConfig.MaxFrameSize)))
	}
	return conn.New(t, opts...)
}

// pipeFrames forwards frames from src to dst until src closes. Each frame
// runs on its own budget: waiting longer than recvTimeout for the next frame
// tears the pairing down, and whatever remains of the budget (plus the grace
// once it is spent) bounds the backpressure retries on the forward step.
func pipeFrames(src, dst *conn.Conn, recvTimeout time.Duration) {
	defer dst.Close()

	for {
		budget := link.NewBudget(recvTimeout)
		ctx, cancel := budget.Context(context.Background())
		frame, err := src.Receive(ctx)
		cancel()
		if err != nil {
			return
		}

		var sendDeadline time.Time
		if budget.Defined() {
			sendDeadline = time.Now().Add(budget.RemainingOrGrace())
		}

		payload := encodeFrame(dst, frame)
		for {
			err := dst.Send(payload)
			if err == nil {
				break
			}
			if errors.Is(err, link.ErrBackpressure) {
				if budget.Defined() && time.Now().After(sendDeadline) {
					return
				}
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return
		}
	}
}

// serveMetrics exposes the default metrics set in Prometheus format
func serveMetrics(addr string) {
	http.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	Logger.Infof("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		Logger.Errorf("metrics server: %v", err)
	}
}
